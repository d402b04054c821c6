package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

type authorizer struct {
	perms  ports.PermissionRepository
	owners ports.ResourceOwnerRepository
	now    func() time.Time
}

// NewAuthorizer returns the Authorizer implementation.
func NewAuthorizer(perms ports.PermissionRepository, owners ports.ResourceOwnerRepository) ports.Authorizer {
	return &authorizer{perms: perms, owners: owners, now: time.Now}
}

// AuthorizeRole passes when the caller holds one of allowed.
func (a *authorizer) AuthorizeRole(identity *domain.Identity, allowed ...domain.Role) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}
	for _, r := range allowed {
		if identity.Role == r {
			return nil
		}
	}
	return domain.ErrForbidden
}

// AuthorizePermission checks, in order, role wildcard grants, the exact role
// grant and unexpired direct user grants. The first match wins.
func (a *authorizer) AuthorizePermission(ctx context.Context, identity *domain.Identity, resource, action string) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}

	rolePerms, err := a.rolePermissions(ctx, identity)
	if err != nil {
		return err
	}
	if rolePerms.HasWildcard(resource, action) || rolePerms.HasExact(resource, action) {
		return nil
	}

	now := a.now()
	grants, err := a.perms.UserGrants(ctx, identity.UserID, resource, now)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	for _, g := range grants {
		if g.Active(now) && g.Permission.Matches(resource, action) {
			return nil
		}
	}
	return domain.ErrForbidden
}

// AuthorizeOwnership passes when the caller owns the resource. Administrators
// bypass the check; unknown resources are forbidden rather than not found.
func (a *authorizer) AuthorizeOwnership(ctx context.Context, identity *domain.Identity, resourceType, resourceID string) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}
	if identity.Role == domain.RoleAdmin {
		return nil
	}

	owner, err := a.owners.OwnerOf(ctx, resourceType, resourceID)
	if errors.Is(err, domain.ErrResourceNotFound) {
		return domain.ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("authorize ownership: %w", err)
	}
	if owner == "" || owner != identity.UserID {
		return domain.ErrForbidden
	}
	return nil
}

// EffectivePermissions is the union of the caller's role permissions and
// unexpired direct grants.
func (a *authorizer) EffectivePermissions(ctx context.Context, identity *domain.Identity) (domain.PermissionSet, error) {
	if identity == nil {
		return nil, domain.ErrUnauthorized
	}
	rolePerms, err := a.rolePermissions(ctx, identity)
	if err != nil {
		return nil, err
	}

	out := domain.NewPermissionSet()
	for p := range rolePerms {
		out.Add(p)
	}

	now := a.now()
	grants, err := a.perms.UserGrants(ctx, identity.UserID, "", now)
	if err != nil {
		return nil, fmt.Errorf("effective permissions: %w", err)
	}
	for _, g := range grants {
		if g.Active(now) {
			out.Add(g.Permission)
		}
	}
	return out, nil
}

func (a *authorizer) rolePermissions(ctx context.Context, identity *domain.Identity) (domain.PermissionSet, error) {
	if identity.Permissions != nil {
		return identity.Permissions, nil
	}
	perms, err := a.perms.RolePermissions(ctx, identity.RoleID)
	if errors.Is(err, domain.ErrRoleNotFound) {
		return domain.NewPermissionSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	return perms, nil
}
