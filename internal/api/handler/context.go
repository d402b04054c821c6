package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

// ctxIdentity returns the identity injected by the Auth middleware. Its
// absence on a protected route means the middleware did not run, which is
// reported as 401 rather than trusted.
func ctxIdentity(c echo.Context) (*domain.Identity, error) {
	id, ok := domain.IdentityFromContext(c.Request().Context())
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return id, nil
}

// clientInfo captures the caller's address and User-Agent for session binding.
func clientInfo(c echo.Context) domain.ClientInfo {
	return domain.ClientInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// bindAndValidate decodes the body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domain.NewValidationError("body", "invalid request payload")
	}
	return c.Validate(req)
}
