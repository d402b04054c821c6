package domain

import (
	"errors"
	"sort"
	"strings"
)

// Expected failures. The HTTP layer maps each of these to a stable error code;
// anything that does not match one of them is treated as an internal error.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUserInactive        = errors.New("user account is inactive")
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountLocked       = errors.New("account is temporarily locked")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("access forbidden")
	ErrValidation          = errors.New("validation failed")
	ErrTimeout             = errors.New("request timed out")

	// ErrCurrentPasswordMismatch is returned by password change when the
	// current password does not verify. It matches ErrInvalidCredentials.
	ErrCurrentPasswordMismatch = &wrappedError{msg: "current password is incorrect", kind: ErrInvalidCredentials}

	ErrCSRFMissing  = &wrappedError{msg: "CSRF token missing", kind: ErrForbidden}
	ErrCSRFInvalid  = &wrappedError{msg: "invalid CSRF token", kind: ErrForbidden}
	ErrCSRFExpired  = &wrappedError{msg: "CSRF token expired", kind: ErrForbidden}
	ErrCSRFUsed     = &wrappedError{msg: "CSRF token already used", kind: ErrForbidden}
	ErrCSRFMismatch = &wrappedError{msg: "CSRF token binding mismatch", kind: ErrForbidden}

	ErrSessionNotFound  = errors.New("session not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrRoleNotFound     = errors.New("role not found")
	ErrCSRFNotFound     = errors.New("csrf token not found")

	ErrHashing           = errors.New("password hashing failed")
	ErrInvalidHashFormat = errors.New("invalid password hash format")
)

// wrappedError is a sentinel with its own message that also matches a broader
// error kind through errors.Is.
type wrappedError struct {
	msg  string
	kind error
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.kind }

// ValidationError reports malformed input with per-field detail.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
