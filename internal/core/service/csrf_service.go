package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
	"github.com/eventops/auth-gateway/internal/pkg/metrics"
)

const (
	defaultCSRFTTL = time.Hour
	csrfTokenBytes = 32
)

type csrfService struct {
	repo    ports.CSRFRepository
	auditor ports.SecurityAuditor
	ttl     time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewCSRFService returns the CSRFService implementation.
func NewCSRFService(repo ports.CSRFRepository, auditor ports.SecurityAuditor, ttl time.Duration, log zerolog.Logger) ports.CSRFService {
	if ttl <= 0 {
		ttl = defaultCSRFTTL
	}
	return &csrfService{repo: repo, auditor: auditor, ttl: ttl, log: log, now: time.Now}
}

// Issue creates a single-use token bound to the caller's client and, when
// known, to the user.
func (s *csrfService) Issue(ctx context.Context, userID string, client domain.ClientInfo) (*domain.CSRFToken, error) {
	value, err := ids.NewOpaqueToken(csrfTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("issue csrf token: %w", err)
	}
	now := s.now().UTC()
	token := &domain.CSRFToken{
		ID:        ids.NewUUID(),
		UserID:    userID,
		Token:     value,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("issue csrf token: %w", err)
	}
	return token, nil
}

// Consume validates value and marks it used. Exactly one of any number of
// concurrent calls with the same token succeeds.
func (s *csrfService) Consume(ctx context.Context, value string, client domain.ClientInfo) error {
	if value == "" {
		metrics.CSRFRejectionsTotal.WithLabelValues("missing").Inc()
		return domain.ErrCSRFMissing
	}

	token, err := s.repo.FindByToken(ctx, value)
	if errors.Is(err, domain.ErrCSRFNotFound) {
		s.reject(ctx, "invalid", domain.UnknownUser, domain.ActivityCSRFInvalid, domain.SeverityLow, client)
		return domain.ErrCSRFInvalid
	}
	if err != nil {
		return fmt.Errorf("consume csrf token: %w", err)
	}

	if token.Expired(s.now()) {
		if err := s.repo.Delete(ctx, value); err != nil {
			s.log.Warn().Err(err).Str("csrf_id", token.ID).Msg("failed to delete expired csrf token")
		}
		metrics.CSRFRejectionsTotal.WithLabelValues("expired").Inc()
		return domain.ErrCSRFExpired
	}
	if token.Used {
		s.reject(ctx, "used", ownerOf(token), domain.ActivityCSRFInvalid, domain.SeverityMedium, client)
		return domain.ErrCSRFUsed
	}
	if (token.IP != "" && token.IP != client.IP) || (token.UserAgent != "" && token.UserAgent != client.UserAgent) {
		s.reject(ctx, "mismatch", ownerOf(token), domain.ActivityCSRFMismatch, domain.SeverityHigh, client)
		return domain.ErrCSRFMismatch
	}

	consumed, err := s.repo.MarkUsed(ctx, value)
	if err != nil {
		return fmt.Errorf("consume csrf token: %w", err)
	}
	if !consumed {
		metrics.CSRFRejectionsTotal.WithLabelValues("used").Inc()
		return domain.ErrCSRFUsed
	}
	return nil
}

func (s *csrfService) reject(ctx context.Context, reason, userID string, activity domain.Activity, severity domain.Severity, client domain.ClientInfo) {
	metrics.CSRFRejectionsTotal.WithLabelValues(reason).Inc()
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, domain.SecurityLogEntry{
		UserID:    userID,
		Activity:  activity,
		Severity:  severity,
		Details:   map[string]any{"reason": reason},
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})
}

func ownerOf(t *domain.CSRFToken) string {
	if t.UserID == "" {
		return domain.UnknownUser
	}
	return t.UserID
}
