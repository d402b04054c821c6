package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

// Auth resolves the bearer token through the authenticator and injects the
// caller's identity into the request context. Any failure aborts the request.
func Auth(authn ports.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := authn.Authenticate(c.Request().Context(), authRequest(c))
			if err != nil {
				return err
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// OptionalAuth attaches an identity when a valid token is presented and lets
// anonymous requests through. A verified token that fails later checks
// (revoked, locked user, dead session) still aborts.
func OptionalAuth(authn ports.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := authn.AuthenticateOptional(c.Request().Context(), authRequest(c))
			if err != nil {
				return err
			}
			if id != nil {
				setIdentity(c, id)
			}
			return next(c)
		}
	}
}

func authRequest(c echo.Context) ports.AuthRequest {
	return ports.AuthRequest{
		Authorization: c.Request().Header.Get(echo.HeaderAuthorization),
		Client:        clientInfo(c),
	}
}

func setIdentity(c echo.Context, id *domain.Identity) {
	req := c.Request()
	c.SetRequest(req.WithContext(domain.ContextWithIdentity(req.Context(), id)))
}

func clientInfo(c echo.Context) domain.ClientInfo {
	return domain.ClientInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
