package service

import (
	"context"
	"fmt"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

const (
	defaultSecurityLogLimit = 100
	maxSecurityLogLimit     = 500
)

type securityLogService struct {
	repo ports.SecurityLogRepository
}

// NewSecurityLogService returns a reader over the security log sink.
func NewSecurityLogService(repo ports.SecurityLogRepository) ports.SecurityLogService {
	return &securityLogService{repo: repo}
}

// List returns the newest entries matching filter. The limit is clamped to
// (0, 500] and defaults to 100.
func (s *securityLogService) List(ctx context.Context, filter domain.SecurityLogFilter) ([]*domain.SecurityLogEntry, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultSecurityLogLimit
	case filter.Limit > maxSecurityLogLimit:
		filter.Limit = maxSecurityLogLimit
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list security logs: %w", err)
	}
	return entries, nil
}
