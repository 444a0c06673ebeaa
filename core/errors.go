package core

import "github.com/pkg/errors"

// FieldError pins a validation failure to one payload field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a domain-rule rejection the HTTP layer renders as a
// 400 with a field map. It covers rules the tag validators cannot express
// (cross-field constraints, upstream rejections).
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// shutdown is an integrity failure the server cannot run through: the HTTP
// error handler answers the request with a 500, then signals a graceful stop.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
