package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

var _ ports.SecurityLogRepository = (*SecurityLogRepository)(nil)

// SecurityLogRepository appends to and reads from security_logs.
type SecurityLogRepository struct {
	db *sql.DB
}

func NewSecurityLogRepository(db *sql.DB) *SecurityLogRepository {
	return &SecurityLogRepository{db: db}
}

func (r *SecurityLogRepository) Append(ctx context.Context, e *domain.SecurityLogEntry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = b
	}
	_, err := r.db.ExecContext(ctx, `
		insert into security_logs (id, user_id, activity_type, details, severity, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.UserID, string(e.Activity), details, string(e.Severity), e.IP, e.UserAgent, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

// List returns matching entries newest first.
func (r *SecurityLogRepository) List(ctx context.Context, f domain.SecurityLogFilter) ([]*domain.SecurityLogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Activity != "" {
		args = append(args, string(f.Activity))
		conds = append(conds, fmt.Sprintf("activity_type = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `select id, user_id, activity_type, details, severity, ip_address, user_agent, created_at from security_logs`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by created_at desc"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list security logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.SecurityLogEntry
	for rows.Next() {
		var (
			e                  domain.SecurityLogEntry
			activity, severity string
			raw                []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &activity, &raw, &severity, &e.IP, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan security log: %w", err)
		}
		e.Activity = domain.Activity(activity)
		e.Severity = domain.Severity(severity)
		e.OccurredAt = e.OccurredAt.UTC()
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
