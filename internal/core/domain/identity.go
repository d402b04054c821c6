package domain

import (
	"context"
	"time"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID         string
	Email          string
	Role           Role
	RoleID         string
	Permissions    PermissionSet
	SessionID      string
	TokenID        string
	TokenExpiresAt time.Time
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
