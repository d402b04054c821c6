package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/metrics"
)

const defaultSweepInterval = 10 * time.Minute

// Sweeper periodically removes expired, inactive sessions and expired CSRF
// tokens.
type Sweeper struct {
	sessions *SessionManager
	csrf     ports.CSRFRepository
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper running every interval (10m when unset).
func NewSweeper(sessions *SessionManager, csrf ports.CSRFRepository, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{sessions: sessions, csrf: csrf, interval: interval, log: log, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single cleanup pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if n, err := s.sessions.Sweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
	} else if n > 0 {
		metrics.SweptRecordsTotal.WithLabelValues("session").Add(float64(n))
		s.log.Info().Int64("deleted", n).Msg("swept expired sessions")
	}

	if s.csrf == nil {
		return
	}
	if n, err := s.csrf.DeleteExpired(ctx, s.now().UTC()); err != nil {
		s.log.Error().Err(err).Msg("csrf token sweep failed")
	} else if n > 0 {
		metrics.SweptRecordsTotal.WithLabelValues("csrf_token").Add(float64(n))
		s.log.Debug().Int64("deleted", n).Msg("swept expired csrf tokens")
	}
}
