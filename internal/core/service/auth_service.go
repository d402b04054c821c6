package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/metrics"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 15 * time.Minute
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)

// AuthConfig holds the tunables of the authentication pipeline.
type AuthConfig struct {
	DefaultRole      domain.Role
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

// AuthDeps are the collaborators of the authentication pipeline.
type AuthDeps struct {
	Users       ports.UserRepository
	Permissions ports.PermissionRepository
	Blacklist   ports.TokenBlacklist
	Tokens      *TokenService
	Sessions    *SessionManager
	Hasher      *PasswordHasher
	Auditor     ports.SecurityAuditor
}

type authService struct {
	users     ports.UserRepository
	perms     ports.PermissionRepository
	blacklist ports.TokenBlacklist
	tokens    *TokenService
	sessions  *SessionManager
	hasher    *PasswordHasher
	auditor   ports.SecurityAuditor
	cfg       AuthConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewAuthService returns the AuthService implementation.
func NewAuthService(deps AuthDeps, cfg AuthConfig, log zerolog.Logger) ports.AuthService {
	if _, ok := domain.ParseRole(string(cfg.DefaultRole)); !ok {
		cfg.DefaultRole = domain.RoleOnsite
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = defaultLockoutDuration
	}
	return &authService{
		users:     deps.Users,
		perms:     deps.Permissions,
		blacklist: deps.Blacklist,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		hasher:    deps.Hasher,
		auditor:   deps.Auditor,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Register creates an account with the default role and opens its first session.
func (s *authService) Register(ctx context.Context, in ports.RegisterInput) (*domain.AuthResult, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	// 1. Validate input.
	if err := validateRegistration(email, username, in.Password); err != nil {
		return nil, err
	}

	// 2. Reject collisions up front; the store's unique constraint catches races.
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrUserAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	// 3. Hash and resolve the default role.
	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	role, err := s.perms.RoleByName(ctx, s.cfg.DefaultRole)
	if err != nil {
		return nil, fmt.Errorf("register: resolve role %s: %w", s.cfg.DefaultRole, err)
	}

	now := s.now().UTC()
	created, err := s.users.Create(ctx, &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		RoleID:       role.ID,
		Role:         role.Name,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// 4. Open the first session.
	_, pair, err := s.sessions.Create(ctx, created, false, in.Client)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("user registered")
	return &domain.AuthResult{User: created, Tokens: pair}, nil
}

// Login verifies credentials and opens a new session.
func (s *authService) Login(ctx context.Context, in ports.LoginInput) (*domain.AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	// 1. Look the user up. Unknown and soft-deleted accounts burn a dummy
	// comparison and fail exactly like a wrong password.
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}
	if user == nil || user.IsDeleted() {
		s.hasher.VerifyDummy(ctx, in.Password)
		s.audit(ctx, domain.UnknownUser, domain.ActivityLoginFailed, domain.SeverityLow, in.Client, map[string]any{
			"reason": "unknown_email",
			"email":  email,
		})
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	// 2. Verify the password; failures feed the lockout counter.
	ok, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil && !errors.Is(err, domain.ErrInvalidHashFormat) {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unreadable")
	}
	if !ok {
		s.recordFailedLogin(ctx, user, in.Client)
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	// 3. Account state is only revealed to callers holding the password.
	now := s.now().UTC()
	if !user.IsActive {
		metrics.LoginsTotal.WithLabelValues("inactive").Inc()
		return nil, domain.ErrUserInactive
	}
	if user.IsLocked(now) {
		s.audit(ctx, user.ID, domain.ActivityLockedAccountToken, domain.SeverityMedium, in.Client, map[string]any{
			"reason":      "login_while_locked",
			"lockedUntil": user.LockedUntil.UTC().Format(time.RFC3339),
		})
		metrics.LoginsTotal.WithLabelValues("locked").Inc()
		return nil, domain.ErrAccountLocked
	}

	// 4. Open the session, then bookkeeping.
	_, pair, err := s.sessions.Create(ctx, user, in.RememberMe, in.Client)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login")
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, in.Password)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return &domain.AuthResult{User: user, Tokens: pair}, nil
}

// Refresh rotates the session's refresh token.
func (s *authService) Refresh(ctx context.Context, refreshToken string, client domain.ClientInfo) (*domain.TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken, client)
	switch {
	case err == nil:
		metrics.RefreshesTotal.WithLabelValues("success").Inc()
	case errors.Is(err, domain.ErrInvalidRefreshToken), errors.Is(err, domain.ErrUserInactive), errors.Is(err, domain.ErrAccountLocked):
		metrics.RefreshesTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.RefreshesTotal.WithLabelValues("error").Inc()
	}
	return pair, err
}

func (s *authService) refresh(ctx context.Context, refreshToken string, client domain.ClientInfo) (*domain.TokenPair, error) {
	// 1. Verify the refresh JWT.
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	// 2. The session must be active, unexpired and hold this token's digest.
	// A well-signed token that no longer matches was already rotated away.
	session, err := s.sessions.FindByRefresh(ctx, claims.SessionID, refreshToken)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.audit(ctx, claims.UserID, domain.ActivityRefreshTokenReuse, domain.SeverityHigh, client, map[string]any{
			"sessionId": claims.SessionID,
			"tokenId":   claims.TokenID,
		})
		return nil, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if session.UserID != claims.UserID {
		return nil, domain.ErrInvalidRefreshToken
	}

	// 3. The owner must still be allowed in.
	user, err := s.users.FindByID(ctx, session.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if user.IsDeleted() {
		return nil, domain.ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	if user.IsLocked(s.now()) {
		return nil, domain.ErrAccountLocked
	}

	// 4. Rotate.
	pair, err := s.sessions.Rotate(ctx, session, refreshToken, user, client)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			s.audit(ctx, user.ID, domain.ActivityRefreshTokenReuse, domain.SeverityHigh, client, map[string]any{
				"sessionId": session.ID,
				"reason":    "concurrent_rotation",
			})
			return nil, err
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return &pair, nil
}

// Logout ends the caller's session and blacklists the presented access token.
func (s *authService) Logout(ctx context.Context, identity *domain.Identity) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}
	if err := s.sessions.Revoke(ctx, identity.SessionID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.blacklistToken(ctx, identity)
	s.log.Info().Str("user_id", identity.UserID).Str("session_id", identity.SessionID).Msg("user logged out")
	return nil
}

// LogoutAll ends every session of the caller.
func (s *authService) LogoutAll(ctx context.Context, identity *domain.Identity) (int64, error) {
	if identity == nil {
		return 0, domain.ErrUnauthorized
	}
	n, err := s.sessions.RevokeAll(ctx, identity.UserID)
	if err != nil {
		return 0, fmt.Errorf("logout all: %w", err)
	}
	s.blacklistToken(ctx, identity)
	s.log.Info().Str("user_id", identity.UserID).Int64("sessions", n).Msg("user logged out everywhere")
	return n, nil
}

// ChangePassword replaces the password and revokes every session.
func (s *authService) ChangePassword(ctx context.Context, in ports.ChangePasswordInput) error {
	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if user.IsDeleted() {
		return domain.ErrUserNotFound
	}

	ok, err := s.hasher.Verify(ctx, in.CurrentPassword, user.PasswordHash)
	if err != nil && !errors.Is(err, domain.ErrInvalidHashFormat) {
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return domain.ErrCurrentPasswordMismatch
	}

	if err := ValidatePassword("newPassword", in.NewPassword); err != nil {
		return err
	}
	if in.NewPassword == in.CurrentPassword {
		return domain.NewValidationError("newPassword", "newPassword must differ from the current password")
	}

	hash, err := s.hasher.Hash(ctx, in.NewPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	n, err := s.sessions.RevokeAll(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.audit(ctx, user.ID, domain.ActivityPasswordChanged, domain.SeverityLow, in.Client, map[string]any{
		"revokedSessions": n,
	})
	return nil
}

// Profile returns the non-sensitive view of a user.
func (s *authService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// Sessions lists the caller's active sessions.
func (s *authService) Sessions(ctx context.Context, identity *domain.Identity) ([]domain.SessionInfo, error) {
	if identity == nil {
		return nil, domain.ErrUnauthorized
	}
	list, err := s.sessions.ListActive(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.Info(identity.SessionID))
	}
	return out, nil
}

// RevokeSession deactivates one of the caller's sessions. Administrators may
// revoke any session.
func (s *authService) RevokeSession(ctx context.Context, identity *domain.Identity, sessionID string) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}
	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != identity.UserID && identity.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return err
	}
	if session.ID == identity.SessionID {
		s.blacklistToken(ctx, identity)
	}
	return nil
}

func (s *authService) recordFailedLogin(ctx context.Context, user *domain.User, client domain.ClientInfo) {
	lockUntil := s.now().UTC().Add(s.cfg.LockoutDuration)
	attempts, err := s.users.RecordFailedLogin(ctx, user.ID, s.cfg.MaxLoginAttempts, lockUntil)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record failed login")
	}
	s.audit(ctx, user.ID, domain.ActivityLoginFailed, domain.SeverityMedium, client, map[string]any{
		"reason":   "wrong_password",
		"attempts": attempts,
	})
	if attempts == s.cfg.MaxLoginAttempts {
		s.audit(ctx, user.ID, domain.ActivityAccountLocked, domain.SeverityHigh, client, map[string]any{
			"lockedUntil": lockUntil.Format(time.RFC3339),
		})
	}
}

func (s *authService) rehash(ctx context.Context, user *domain.User, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash failed")
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to persist rehashed password")
		return
	}
	user.PasswordHash = hash
}

// blacklistToken keeps a revoked access token unusable until it expires. The
// session is already inactive, so a blacklist failure is logged only.
func (s *authService) blacklistToken(ctx context.Context, identity *domain.Identity) {
	if identity.TokenID == "" || s.blacklist == nil {
		return
	}
	if err := s.blacklist.Add(ctx, identity.TokenID, s.tokens.AcceptedUntil(identity.TokenExpiresAt)); err != nil {
		s.log.Warn().Err(err).Str("token_id", identity.TokenID).Msg("failed to blacklist token")
	}
}

func (s *authService) audit(ctx context.Context, userID string, activity domain.Activity, severity domain.Severity, client domain.ClientInfo, details map[string]any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, domain.SecurityLogEntry{
		UserID:    userID,
		Activity:  activity,
		Severity:  severity,
		Details:   details,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(email, username, password string) error {
	fields := map[string]string{}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields["email"] = "email must be a valid address"
	}
	if !usernamePattern.MatchString(username) {
		fields["username"] = "username must be 3-50 letters, digits, '.', '_' or '-'"
	}
	if err := ValidatePassword("password", password); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Fields {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}
