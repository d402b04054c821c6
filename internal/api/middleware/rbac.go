package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

// RequireRole enforces role-based access control. It must run after Auth.
func RequireRole(authz ports.Authorizer, allowed ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := domain.IdentityFromContext(c.Request().Context())
			if !ok {
				return domain.ErrUnauthorized
			}
			if err := authz.AuthorizeRole(id, allowed...); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequirePermission requires resource:action through the caller's role or a
// direct grant.
func RequirePermission(authz ports.Authorizer, resource, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := domain.IdentityFromContext(c.Request().Context())
			if !ok {
				return domain.ErrUnauthorized
			}
			if err := authz.AuthorizePermission(c.Request().Context(), id, resource, action); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireOwnership requires the caller to own the resource whose id is in the
// named path parameter.
func RequireOwnership(authz ports.Authorizer, resourceType, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := domain.IdentityFromContext(c.Request().Context())
			if !ok {
				return domain.ErrUnauthorized
			}
			if err := authz.AuthorizeOwnership(c.Request().Context(), id, resourceType, c.Param(param)); err != nil {
				return err
			}
			return next(c)
		}
	}
}
