package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
)

var _ ports.PermissionRepository = (*PermissionRepository)(nil)

// PermissionRepository resolves roles, role permissions and direct grants.
type PermissionRepository struct {
	db *sql.DB
}

func NewPermissionRepository(db *sql.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) RoleByName(ctx context.Context, name domain.Role) (*domain.RoleRecord, error) {
	var (
		role    domain.RoleRecord
		rawName string
	)
	err := r.db.QueryRowContext(ctx, `
		select id, name, description from roles where name = $1
	`, string(name)).Scan(&role.ID, &rawName, &role.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}
	role.Name = domain.Role(rawName)

	perms, err := r.RolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (r *PermissionRepository) RolePermissions(ctx context.Context, roleID string) (domain.PermissionSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		select p.resource, p.action
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()

	set := domain.NewPermissionSet()
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		set.Add(p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

func (r *PermissionRepository) ListRoles(ctx context.Context) ([]*domain.RoleRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		select r.id, r.name, r.description, p.resource, p.action
		from roles r
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		order by r.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var (
		out   []*domain.RoleRecord
		index = map[string]*domain.RoleRecord{}
	)
	for rows.Next() {
		var (
			id, name, desc   string
			resource, action sql.NullString
		)
		if err := rows.Scan(&id, &name, &desc, &resource, &action); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		role, ok := index[id]
		if !ok {
			role = &domain.RoleRecord{ID: id, Name: domain.Role(name), Description: desc, Permissions: domain.NewPermissionSet()}
			index[id] = role
			out = append(out, role)
		}
		if resource.Valid && action.Valid {
			role.Permissions.Add(domain.Permission{Resource: resource.String, Action: action.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PermissionRepository) UserGrants(ctx context.Context, userID, resource string, now time.Time) ([]domain.UserPermission, error) {
	rows, err := r.db.QueryContext(ctx, `
		select up.user_id, p.resource, p.action, up.expires_at
		from user_permissions up
		join permissions p on p.id = up.permission_id
		where up.user_id = $1
		  and (up.expires_at is null or up.expires_at > $2)
		  and ($3 = '' or p.resource = $3 or p.resource = '*')
	`, userID, now, resource)
	if err != nil {
		return nil, fmt.Errorf("user grants: %w", err)
	}
	defer rows.Close()

	var out []domain.UserPermission
	for rows.Next() {
		var (
			g         domain.UserPermission
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&g.UserID, &g.Permission.Resource, &g.Permission.Action, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.ExpiresAt = timePtr(expiresAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureBuiltinRoles upserts every role in table with its permissions in a
// single transaction. Existing grants are kept.
func (r *PermissionRepository) EnsureBuiltinRoles(ctx context.Context, table map[domain.Role][]domain.Permission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range domain.Roles {
		perms, ok := table[name]
		if !ok {
			continue
		}
		var roleID string
		err := tx.QueryRowContext(ctx, `
			insert into roles (id, name) values ($1, $2)
			on conflict (name) do update set name = excluded.name
			returning id
		`, ids.NewUUID(), string(name)).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}

		for _, p := range perms {
			if _, err := tx.ExecContext(ctx, `
				insert into permissions (id, resource, action) values ($1, $2, $3)
				on conflict (resource, action) do nothing
			`, ids.NewUUID(), p.Resource, p.Action); err != nil {
				return fmt.Errorf("seed permission %s: %w", p, err)
			}
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role_id, permission_id)
				select $1, id from permissions where resource = $2 and action = $3
				on conflict do nothing
			`, roleID, p.Resource, p.Action); err != nil {
				return fmt.Errorf("seed role permission %s/%s: %w", name, p, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	return nil
}
