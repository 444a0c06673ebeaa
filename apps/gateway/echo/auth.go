package echogw

import (
	"sort"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/user"
)

const contextTokenKey = "userToken"

// appJWTConfig validates backend-issued tokens: the signing key is shared
// with the Kampus backend, so any token it minted is accepted here.
func appJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(user.Claims),
	}
}

func getContextClaims(ctx echo.Context) (user.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*user.Claims); ok {
			return *claims, nil
		}
	}
	return user.Claims{}, errUnauthorized
}

// getContextSession derives the acting Session from the validated claims,
// for role checks and error reporting.
func getContextSession(ctx echo.Context) (user.Session, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.Session{}, err
	}
	var token string
	if t, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		token = t.Raw
	}
	return user.Session{
		Token:     token,
		Subject:   claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Roles:     claims.Roles,
		IsAdmin:   claims.IsAdmin,
		IsTeacher: claims.IsTeacher,
		IsStudent: claims.IsStudent,
	}, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}
