package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/api/response"
	"github.com/eventops/auth-gateway/internal/core/domain"
)

// errorMapping ties a domain error to its HTTP status, stable code and the
// message shown to clients. An empty message means the error's own text.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; more specific errors come first.
var errorMappings = []errorMapping{
	{domain.ErrCurrentPasswordMismatch, http.StatusBadRequest, "InvalidCredentials", ""},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials", "Invalid email or password"},
	{domain.ErrUserAlreadyExists, http.StatusConflict, "UserAlreadyExists", "A user with this email or username already exists"},
	{domain.ErrUserInactive, http.StatusUnauthorized, "UserInactive", "User account is inactive"},
	{domain.ErrUserNotFound, http.StatusUnauthorized, "UserNotFound", "User not found"},
	{domain.ErrAccountLocked, http.StatusForbidden, "Forbidden", "Account is temporarily locked"},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "TokenExpired", "Token has expired"},
	{domain.ErrTokenRevoked, http.StatusUnauthorized, "TokenInvalid", "Invalid token"},
	{domain.ErrTokenInvalid, http.StatusUnauthorized, "TokenInvalid", "Invalid token"},
	{domain.ErrInvalidRefreshToken, http.StatusUnauthorized, "InvalidRefreshToken", "Invalid refresh token"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized", "Authentication required"},
	{domain.ErrCSRFMissing, http.StatusForbidden, "Forbidden", ""},
	{domain.ErrCSRFInvalid, http.StatusForbidden, "Forbidden", ""},
	{domain.ErrCSRFExpired, http.StatusForbidden, "Forbidden", ""},
	{domain.ErrCSRFUsed, http.StatusForbidden, "Forbidden", ""},
	{domain.ErrCSRFMismatch, http.StatusForbidden, "Forbidden", ""},
	{domain.ErrForbidden, http.StatusForbidden, "Forbidden", "Access forbidden"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "NotFound", "Session not found"},
	{domain.ErrResourceNotFound, http.StatusNotFound, "NotFound", "Resource not found"},
	{domain.ErrTimeout, http.StatusServiceUnavailable, "Timeout", "Request timed out"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "Timeout", "Request timed out"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status codes and stable error codes.
//   - Logs unexpected errors with the request id without leaking details to the client.
//   - Renders the shared failure envelope.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, code, msg, details := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = response.Error(c, status, code, msg, details)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string, string, any) {
	// Validation failures carry per-field details.
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, "ValidationError", ve.Error(), ve.Fields
	}
	if errors.Is(err, domain.ErrValidation) {
		return http.StatusBadRequest, "ValidationError", err.Error(), nil
	}

	// Known domain errors → deterministic HTTP codes.
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = m.target.Error()
			}
			return m.status, m.code, msg, nil
		}
	}

	// Echo's own errors (bind failures, 404 from router, rate limiter, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil && errors.Is(he.Internal, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable, "Timeout", "Request timed out", nil
		}
		return he.Code, httpErrorCode(he.Code), fmt.Sprintf("%v", he.Message), nil
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("request_id", response.RequestID(c)).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "InternalError", "Internal server error", nil
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BadRequest"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLarge"
	case http.StatusUnsupportedMediaType:
		return "UnsupportedMediaType"
	case http.StatusTooManyRequests:
		return "TooManyRequests"
	case http.StatusServiceUnavailable:
		return "Timeout"
	}
	if status >= 500 {
		return "InternalError"
	}
	return http.StatusText(status)
}
