package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
	"github.com/eventops/auth-gateway/internal/pkg/metrics"
)

const sessionTokenBytes = 32

// SessionConfig sets session lifetimes.
type SessionConfig struct {
	TTL         time.Duration
	RememberTTL time.Duration
}

// SessionManager owns the session lifecycle and binds token pairs to sessions.
type SessionManager struct {
	sessions ports.SessionRepository
	tokens   *TokenService
	cfg      SessionConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewSessionManager creates a SessionManager. Zero lifetimes fall back to 24h
// and 30 days.
func NewSessionManager(sessions ports.SessionRepository, tokens *TokenService, cfg SessionConfig, log zerolog.Logger) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = 30 * 24 * time.Hour
	}
	return &SessionManager{sessions: sessions, tokens: tokens, cfg: cfg, log: log, now: time.Now}
}

// Create persists a new session for user and returns it with a token pair
// bound to it. The session is stored before any token leaves this function.
func (m *SessionManager) Create(ctx context.Context, user *domain.User, rememberMe bool, client domain.ClientInfo) (*domain.Session, domain.TokenPair, error) {
	opaque, err := ids.NewOpaqueToken(sessionTokenBytes)
	if err != nil {
		return nil, domain.TokenPair{}, fmt.Errorf("generate session token: %w", err)
	}

	now := m.now().UTC()
	ttl := m.cfg.TTL
	if rememberMe {
		ttl = m.cfg.RememberTTL
	}
	session := &domain.Session{
		ID:             ids.NewUUID(),
		UserID:         user.ID,
		SessionToken:   opaque,
		RememberMe:     rememberMe,
		IP:             client.IP,
		UserAgent:      client.UserAgent,
		IsActive:       true,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}

	pair, err := m.issuePair(user, session, client)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}
	session.RefreshTokenHash = HashToken(pair.RefreshToken)

	// Once the row is written the pair must reach the caller.
	if err := ctx.Err(); err != nil {
		return nil, domain.TokenPair{}, err
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, domain.TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsCreatedTotal.WithLabelValues(strconv.FormatBool(rememberMe)).Inc()
	return session, pair, nil
}

// Rotate replaces the session's refresh token. The stored digest is swapped
// only if it still matches presentedRefresh, so of two concurrent rotations
// with the same token exactly one succeeds.
func (m *SessionManager) Rotate(ctx context.Context, session *domain.Session, presentedRefresh string, user *domain.User, client domain.ClientInfo) (domain.TokenPair, error) {
	pair, err := m.issuePair(user, session, client)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.TokenPair{}, err
	}

	swapped, err := m.sessions.RotateRefresh(ctx, session.ID, HashToken(presentedRefresh), HashToken(pair.RefreshToken), m.now().UTC())
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		return domain.TokenPair{}, domain.ErrInvalidRefreshToken
	}
	return pair, nil
}

// Verify loads a session for request authentication. Missing, revoked and
// expired sessions all fail with domain.ErrTokenInvalid; an expired session
// still flagged active is deactivated on the way out.
func (m *SessionManager) Verify(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != userID || !session.IsActive {
		return nil, domain.ErrTokenInvalid
	}
	if session.Expired(m.now()) {
		if err := m.sessions.Deactivate(ctx, session.ID); err != nil {
			m.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to deactivate expired session")
		}
		return nil, domain.ErrTokenInvalid
	}
	return session, nil
}

// Touch records activity on a session. Failures are logged, not returned.
func (m *SessionManager) Touch(ctx context.Context, sessionID string) {
	if err := m.sessions.Touch(ctx, sessionID, m.now().UTC()); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to touch session")
	}
}

// Find returns a session by id regardless of state.
func (m *SessionManager) Find(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.sessions.FindByID(ctx, sessionID)
}

// FindByRefresh returns the active, unexpired session whose stored digest
// matches refreshToken, or domain.ErrSessionNotFound.
func (m *SessionManager) FindByRefresh(ctx context.Context, sessionID, refreshToken string) (*domain.Session, error) {
	return m.sessions.FindActiveByRefresh(ctx, sessionID, HashToken(refreshToken), m.now().UTC())
}

// Revoke deactivates one session.
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if err := m.sessions.Deactivate(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll deactivates every session of userID and returns how many were active.
func (m *SessionManager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := m.sessions.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return n, nil
}

// ListActive returns the active, unexpired sessions of userID.
func (m *SessionManager) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return m.sessions.ListActive(ctx, userID, m.now().UTC())
}

// Sweep deletes sessions that are both expired and inactive.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	return m.sessions.DeleteExpiredInactive(ctx, m.now().UTC())
}

func (m *SessionManager) issuePair(user *domain.User, session *domain.Session, client domain.ClientInfo) (domain.TokenPair, error) {
	base := domain.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		RoleID:    user.RoleID,
		Role:      user.Role,
		SessionID: session.ID,
		IP:        client.IP,
		UAHash:    HashUserAgent(client.UserAgent),
	}

	access, accessClaims, err := m.tokens.IssueAccessToken(base)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, refreshClaims, err := m.tokens.IssueRefreshToken(base, session.RememberMe)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		TokenType:             "Bearer",
		ExpiresIn:             int64(m.tokens.AccessTTL() / time.Second),
		AccessTokenExpiresAt:  accessClaims.ExpiresAt,
		RefreshTokenExpiresAt: refreshClaims.ExpiresAt,
		SessionID:             session.ID,
	}, nil
}
