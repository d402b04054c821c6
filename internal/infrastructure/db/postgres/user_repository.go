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

var _ ports.UserRepository = (*UserRepository)(nil)

const selectUser = `
	select u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name,
	       u.role_id, r.name, u.is_active, u.deleted_at, u.failed_login_attempts,
	       u.locked_until, u.last_login_at, u.created_at, u.updated_at
	from users u
	join roles r on r.id = u.role_id`

// UserRepository stores users in the users table.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, selectUser+` where u.id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, selectUser+` where lower(u.email) = lower($1)`, email)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, selectUser+` where u.username = $1`, username)
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// Create inserts user. A unique violation on email or username maps to
// domain.ErrUserAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	created := *user
	if created.ID == "" {
		created.ID = ids.NewUUID()
	}
	err := r.db.QueryRowContext(ctx, `
		insert into users (id, email, username, password_hash, first_name, last_name, role_id, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning created_at, updated_at
	`, created.ID, created.Email, created.Username, created.PasswordHash, created.FirstName, created.LastName,
		created.RoleID, created.IsActive, created.CreatedAt, created.UpdatedAt,
	).Scan(&created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	created.CreatedAt = created.CreatedAt.UTC()
	created.UpdatedAt = created.UpdatedAt.UTC()
	return &created, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now()
		where id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res, domain.ErrUserNotFound)
}

// RecordFailedLogin increments the counter and locks the account in the same
// statement once the threshold is reached.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		update users
		set failed_login_attempts = failed_login_attempts + 1,
		    locked_until = case when failed_login_attempts + 1 >= $2 then $3 else locked_until end,
		    updated_at = now()
		where id = $1
		returning failed_login_attempts
	`, id, maxAttempts, lockUntil).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record failed login: %w", err)
	}
	return attempts, nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		update users
		set failed_login_attempts = 0, locked_until = null, last_login_at = $2, updated_at = now()
		where id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return expectOne(res, domain.ErrUserNotFound)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `update users set last_login_at = $2 where id = $1`, id, at); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                                 domain.User
		role                              string
		deletedAt, lockedUntil, lastLogin sql.NullTime
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.RoleID, &role, &u.IsActive, &deletedAt, &u.FailedLoginAttempts,
		&lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.DeletedAt = timePtr(deletedAt)
	u.LockedUntil = timePtr(lockedUntil)
	u.LastLoginAt = timePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
