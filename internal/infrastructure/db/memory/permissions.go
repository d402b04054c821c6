package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
)

// PermissionStore implements ports.PermissionRepository.
type PermissionStore struct {
	mu     sync.RWMutex
	roles  map[string]*domain.RoleRecord
	grants []domain.UserPermission
}

// NewPermissionStore returns a store seeded with the builtin roles.
func NewPermissionStore() *PermissionStore {
	s := &PermissionStore{roles: make(map[string]*domain.RoleRecord)}
	_ = s.EnsureBuiltinRoles(context.Background(), domain.BuiltinRolePermissions)
	return s
}

func (s *PermissionStore) RoleByName(_ context.Context, name domain.Role) (*domain.RoleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (s *PermissionStore) RolePermissions(_ context.Context, roleID string) (domain.PermissionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return cloneRole(r).Permissions, nil
}

func (s *PermissionStore) ListRoles(_ context.Context) ([]*domain.RoleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.RoleRecord, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *PermissionStore) UserGrants(_ context.Context, userID, resource string, now time.Time) ([]domain.UserPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UserPermission
	for _, g := range s.grants {
		if g.UserID != userID || !g.Active(now) {
			continue
		}
		if resource != "" && g.Permission.Resource != resource && g.Permission.Resource != domain.Wildcard {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *PermissionStore) EnsureBuiltinRoles(_ context.Context, table map[domain.Role][]domain.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, perms := range table {
		var existing *domain.RoleRecord
		for _, r := range s.roles {
			if r.Name == name {
				existing = r
				break
			}
		}
		if existing == nil {
			existing = &domain.RoleRecord{ID: ids.NewUUID(), Name: name, Permissions: domain.NewPermissionSet()}
			s.roles[existing.ID] = existing
		}
		for _, p := range perms {
			existing.Permissions.Add(p)
		}
	}
	return nil
}

// Grant adds a direct permission for userID.
func (s *PermissionStore) Grant(userID string, p domain.Permission, expiresAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, domain.UserPermission{UserID: userID, Permission: p, ExpiresAt: expiresAt})
}

func cloneRole(r *domain.RoleRecord) *domain.RoleRecord {
	c := *r
	c.Permissions = domain.NewPermissionSet()
	for p := range r.Permissions {
		c.Permissions.Add(p)
	}
	return &c
}
