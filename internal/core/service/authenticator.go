package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/metrics"
)

// AuthenticatorDeps are the collaborators of request authentication.
type AuthenticatorDeps struct {
	Tokens      *TokenService
	Sessions    *SessionManager
	Users       ports.UserRepository
	Permissions ports.PermissionRepository
	Blacklist   ports.TokenBlacklist
	Auditor     ports.SecurityAuditor
}

type authenticator struct {
	tokens   *TokenService
	sessions *SessionManager
	users    ports.UserRepository
	perms    ports.PermissionRepository
	bl       ports.TokenBlacklist
	auditor  ports.SecurityAuditor
	ipCheck  bool
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthenticator returns the request Authenticator. With ipCheck set, a
// privileged caller whose IP differs from the one the token was issued to is
// rejected; other roles only get a security log entry.
func NewAuthenticator(deps AuthenticatorDeps, ipCheck bool, log zerolog.Logger) ports.Authenticator {
	return &authenticator{
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		users:    deps.Users,
		perms:    deps.Permissions,
		bl:       deps.Blacklist,
		auditor:  deps.Auditor,
		ipCheck:  ipCheck,
		log:      log,
		now:      time.Now,
	}
}

// Authenticate resolves the caller behind the request's bearer token.
func (a *authenticator) Authenticate(ctx context.Context, req ports.AuthRequest) (*domain.Identity, error) {
	// 1-2. Header presence and shape.
	if req.Authorization == "" {
		metrics.AuthFailuresTotal.WithLabelValues("missing").Inc()
		return nil, domain.ErrTokenInvalid
	}
	token, ok := ExtractBearer(req.Authorization)
	if !ok {
		metrics.AuthFailuresTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrTokenInvalid
	}

	// 3. Signature, issuer, audience, expiry, type and version.
	claims, err := a.tokens.VerifyAccessToken(token)
	if err != nil {
		a.rejectUnverified(ctx, req, err)
		return nil, err
	}
	return a.resolve(ctx, claims, req)
}

// AuthenticateOptional behaves like Authenticate, except that a missing
// header or an unverifiable token yields no identity instead of an error. A
// header that is not a bearer credential is still rejected.
func (a *authenticator) AuthenticateOptional(ctx context.Context, req ports.AuthRequest) (*domain.Identity, error) {
	if req.Authorization == "" {
		return nil, nil
	}
	token, ok := ExtractBearer(req.Authorization)
	if !ok {
		metrics.AuthFailuresTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrTokenInvalid
	}
	claims, err := a.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, nil
	}
	return a.resolve(ctx, claims, req)
}

func (a *authenticator) resolve(ctx context.Context, claims *domain.Claims, req ports.AuthRequest) (*domain.Identity, error) {
	// 4. Revocation. A store failure rejects the request.
	revoked, err := a.bl.IsBlacklisted(ctx, claims.TokenID)
	if err != nil {
		a.log.Error().Err(err).Str("token_id", claims.TokenID).Msg("blacklist lookup failed")
		metrics.AuthFailuresTotal.WithLabelValues("revoked").Inc()
		return nil, domain.ErrTokenRevoked
	}
	if revoked {
		a.audit(ctx, claims.UserID, domain.ActivityBlacklistedToken, domain.SeverityHigh, req.Client, map[string]any{
			"tokenId":   claims.TokenID,
			"sessionId": claims.SessionID,
		})
		metrics.AuthFailuresTotal.WithLabelValues("revoked").Inc()
		return nil, domain.ErrTokenRevoked
	}

	// 5. The user must exist and be allowed in.
	user, err := a.users.FindByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if user == nil || user.IsDeleted() {
		metrics.AuthFailuresTotal.WithLabelValues("user").Inc()
		return nil, domain.ErrUserNotFound
	}
	if !user.IsActive {
		metrics.AuthFailuresTotal.WithLabelValues("user").Inc()
		return nil, domain.ErrUserInactive
	}
	if user.IsLocked(a.now()) {
		a.audit(ctx, user.ID, domain.ActivityLockedAccountToken, domain.SeverityMedium, req.Client, map[string]any{
			"tokenId":     claims.TokenID,
			"lockedUntil": user.LockedUntil.UTC().Format(time.RFC3339),
		})
		metrics.AuthFailuresTotal.WithLabelValues("user").Inc()
		return nil, domain.ErrAccountLocked
	}

	// 6. The session must still be live.
	if _, err := a.sessions.Verify(ctx, claims.SessionID, user.ID); err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			metrics.AuthFailuresTotal.WithLabelValues("session").Inc()
		}
		return nil, err
	}

	// 7. Client binding.
	if err := a.checkBinding(ctx, claims, user, req.Client); err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("binding").Inc()
		return nil, err
	}

	// 8. Permissions and identity.
	perms, err := a.perms.RolePermissions(ctx, user.RoleID)
	if err != nil && !errors.Is(err, domain.ErrRoleNotFound) {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if perms == nil {
		perms = domain.NewPermissionSet()
	}

	a.sessions.Touch(ctx, claims.SessionID)
	if err := a.users.TouchLastLogin(ctx, user.ID, a.now().UTC()); err != nil {
		a.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to touch last login")
	}

	return &domain.Identity{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           user.Role,
		RoleID:         user.RoleID,
		Permissions:    perms,
		SessionID:      claims.SessionID,
		TokenID:        claims.TokenID,
		TokenExpiresAt: claims.ExpiresAt,
	}, nil
}

// checkBinding compares the request's client with the one the token was
// issued to. Mismatches are always logged; only an IP change on a privileged
// account is fatal.
func (a *authenticator) checkBinding(ctx context.Context, claims *domain.Claims, user *domain.User, client domain.ClientInfo) error {
	if claims.UAHash != "" && claims.UAHash != HashUserAgent(client.UserAgent) {
		a.audit(ctx, user.ID, domain.ActivityUserAgentMismatch, domain.SeverityMedium, client, map[string]any{
			"sessionId": claims.SessionID,
		})
	}
	if claims.IP == "" || claims.IP == client.IP {
		return nil
	}

	severity := domain.SeverityMedium
	if user.Role.Privileged() {
		severity = domain.SeverityHigh
	}
	a.audit(ctx, user.ID, domain.ActivityIPMismatch, severity, client, map[string]any{
		"sessionId":  claims.SessionID,
		"expectedIp": claims.IP,
		"role":       string(user.Role),
	})
	if a.ipCheck && user.Role.Privileged() {
		return domain.ErrUnauthorized
	}
	return nil
}

func (a *authenticator) rejectUnverified(ctx context.Context, req ports.AuthRequest, err error) {
	reason := "invalid"
	if errors.Is(err, domain.ErrTokenExpired) {
		reason = "expired"
	}
	metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	a.audit(ctx, domain.UnknownUser, domain.ActivityTokenValidation, domain.SeverityLow, req.Client, map[string]any{
		"reason": reason,
	})
}

func (a *authenticator) audit(ctx context.Context, userID string, activity domain.Activity, severity domain.Severity, client domain.ClientInfo, details map[string]any) {
	if a.auditor == nil {
		return
	}
	a.auditor.Record(ctx, domain.SecurityLogEntry{
		UserID:    userID,
		Activity:  activity,
		Severity:  severity,
		Details:   details,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})
}
