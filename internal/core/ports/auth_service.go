package ports

import (
	"context"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

// RegisterInput carries the data needed to create an account.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Client    domain.ClientInfo
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	Client     domain.ClientInfo
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	Client          domain.ClientInfo
}

// AuthService is the authentication pipeline. It is the only component that
// mints or revokes tokens and sessions.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.AuthResult, error)
	Login(ctx context.Context, in LoginInput) (*domain.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, client domain.ClientInfo) (*domain.TokenPair, error)
	Logout(ctx context.Context, identity *domain.Identity) error
	LogoutAll(ctx context.Context, identity *domain.Identity) (int64, error)
	ChangePassword(ctx context.Context, in ChangePasswordInput) error
	Profile(ctx context.Context, userID string) (*domain.User, error)
	Sessions(ctx context.Context, identity *domain.Identity) ([]domain.SessionInfo, error)
	RevokeSession(ctx context.Context, identity *domain.Identity, sessionID string) error
}

// AuthRequest is what the request authenticator sees of an HTTP request.
type AuthRequest struct {
	Authorization string
	Client        domain.ClientInfo
}

// Authenticator resolves the caller behind a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) (*domain.Identity, error)
	// AuthenticateOptional returns (nil, nil) when no token is presented or the
	// token does not verify. Failures after verification still reject.
	AuthenticateOptional(ctx context.Context, req AuthRequest) (*domain.Identity, error)
}

// Authorizer answers role, permission and ownership questions.
type Authorizer interface {
	AuthorizeRole(identity *domain.Identity, allowed ...domain.Role) error
	AuthorizePermission(ctx context.Context, identity *domain.Identity, resource, action string) error
	AuthorizeOwnership(ctx context.Context, identity *domain.Identity, resourceType, resourceID string) error
	EffectivePermissions(ctx context.Context, identity *domain.Identity) (domain.PermissionSet, error)
}

// CSRFService issues and consumes CSRF tokens.
type CSRFService interface {
	Issue(ctx context.Context, userID string, client domain.ClientInfo) (*domain.CSRFToken, error)
	Consume(ctx context.Context, value string, client domain.ClientInfo) error
}

// SecurityAuditor records security anomalies without ever failing the caller.
type SecurityAuditor interface {
	Record(ctx context.Context, entry domain.SecurityLogEntry)
}

// SecurityLogService reads the audit trail.
type SecurityLogService interface {
	List(ctx context.Context, filter domain.SecurityLogFilter) ([]*domain.SecurityLogEntry, error)
}
