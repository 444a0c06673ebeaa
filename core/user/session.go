package user

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

// Claims represents the authorization claims transmitted via a backend-issued JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"`
	IsTeacher    bool     `json:"is_teacher,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// Session is the application-session context: the authenticated user's claims
// plus the raw token used on upstream calls. It is passed explicitly to
// whatever needs role-gated behaviour; there is no package-level current user.
type Session struct {
	Token     string
	Subject   string
	Username  string
	Email     string
	Roles     []string
	IsAdmin   bool
	IsTeacher bool
	IsStudent bool
	ExpiresAt time.Time
}

// NewSession decodes a backend-issued token into a Session.
// The signature is NOT verified here: the backend signed it and the backend
// will reject it if tampered with; this side only needs the claims.
func NewSession(token string) (Session, error) {
	claims := new(Claims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return Session{}, errors.Wrap(err, "parsing token")
	}
	var expiresAt time.Time
	if claims.ExpiresAt != 0 {
		expiresAt = time.Unix(claims.ExpiresAt, 0)
	}
	return Session{
		Token:     token,
		Subject:   claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Roles:     claims.Roles,
		IsAdmin:   claims.IsAdmin,
		IsTeacher: claims.IsTeacher,
		IsStudent: claims.IsStudent,
		ExpiresAt: expiresAt,
	}, nil
}

// IsZero reports whether the session carries no token (anonymous).
func (s Session) IsZero() bool { return s.Token == "" }

// Expired reports whether the token has expired (with a small clock margin).
func (s Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt.Add(-30*time.Second))
}
