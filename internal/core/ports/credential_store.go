package ports

import (
	"context"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

// UserRepository persists users. Lookups return domain.ErrUserNotFound when no
// row matches; Create returns domain.ErrUserAlreadyExists on a uniqueness
// violation of email or username.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// RecordFailedLogin increments the failed-login counter and, once it
	// reaches maxAttempts, sets locked_until. It returns the new counter.
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error)
	// RecordLogin clears the failed-login counter and lock and stamps last login.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepository persists sessions. Sessions are deactivated, not deleted,
// except by DeleteExpiredInactive.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	// FindActiveByRefresh returns the session only when id, refresh digest,
	// active flag and expiry all match; otherwise domain.ErrSessionNotFound.
	FindActiveByRefresh(ctx context.Context, id, refreshHash string, now time.Time) (*domain.Session, error)
	// RotateRefresh swaps the refresh digest only if it still equals oldHash.
	// It reports whether the swap happened.
	RotateRefresh(ctx context.Context, id, oldHash, newHash string, now time.Time) (bool, error)
	Deactivate(ctx context.Context, id string) error
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteExpiredInactive(ctx context.Context, now time.Time) (int64, error)
}

// TokenBlacklist records token identifiers revoked before natural expiry.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	Add(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// CSRFRepository persists single-use CSRF tokens.
type CSRFRepository interface {
	Create(ctx context.Context, token *domain.CSRFToken) error
	FindByToken(ctx context.Context, value string) (*domain.CSRFToken, error)
	// MarkUsed flips the used flag only if it was unset and reports whether
	// this call consumed the token.
	MarkUsed(ctx context.Context, value string) (bool, error)
	Delete(ctx context.Context, value string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PermissionRepository resolves roles and direct grants.
type PermissionRepository interface {
	RoleByName(ctx context.Context, name domain.Role) (*domain.RoleRecord, error)
	RolePermissions(ctx context.Context, roleID string) (domain.PermissionSet, error)
	ListRoles(ctx context.Context) ([]*domain.RoleRecord, error)
	// UserGrants lists the user's direct grants on resource (including
	// wildcard-resource grants) that have not expired at now. An empty
	// resource lists every unexpired grant.
	UserGrants(ctx context.Context, userID, resource string, now time.Time) ([]domain.UserPermission, error)
	EnsureBuiltinRoles(ctx context.Context, table map[domain.Role][]domain.Permission) error
}

// SecurityLogRepository is an append-only sink for security events.
type SecurityLogRepository interface {
	Append(ctx context.Context, entry *domain.SecurityLogEntry) error
	List(ctx context.Context, filter domain.SecurityLogFilter) ([]*domain.SecurityLogEntry, error)
}

// ResourceOwnerRepository resolves the owning user of a resource for
// ownership checks. Unknown ids return domain.ErrResourceNotFound.
type ResourceOwnerRepository interface {
	OwnerOf(ctx context.Context, resourceType, resourceID string) (string, error)
}
