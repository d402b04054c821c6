package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

var _ ports.CSRFRepository = (*CSRFRepository)(nil)

// CSRFRepository stores single-use tokens in csrf_tokens.
type CSRFRepository struct {
	db *sql.DB
}

func NewCSRFRepository(db *sql.DB) *CSRFRepository {
	return &CSRFRepository{db: db}
}

func (r *CSRFRepository) Create(ctx context.Context, t *domain.CSRFToken) error {
	_, err := r.db.ExecContext(ctx, `
		insert into csrf_tokens (id, user_id, token, ip_address, user_agent, used, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, nullString(t.UserID), t.Token, t.IP, t.UserAgent, t.Used, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert csrf token: %w", err)
	}
	return nil
}

func (r *CSRFRepository) FindByToken(ctx context.Context, value string) (*domain.CSRFToken, error) {
	var (
		t      domain.CSRFToken
		userID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		select id, user_id, token, ip_address, user_agent, used, expires_at, created_at
		from csrf_tokens
		where token = $1
	`, value).Scan(&t.ID, &userID, &t.Token, &t.IP, &t.UserAgent, &t.Used, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCSRFNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find csrf token: %w", err)
	}
	t.UserID = userID.String
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// MarkUsed consumes the token only if no other request did so first.
func (r *CSRFRepository) MarkUsed(ctx context.Context, value string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `update csrf_tokens set used = true where token = $1 and used = false`, value)
	if err != nil {
		return false, fmt.Errorf("mark csrf token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark csrf token used: %w", err)
	}
	return n == 1, nil
}

func (r *CSRFRepository) Delete(ctx context.Context, value string) error {
	if _, err := r.db.ExecContext(ctx, `delete from csrf_tokens where token = $1`, value); err != nil {
		return fmt.Errorf("delete csrf token: %w", err)
	}
	return nil
}

func (r *CSRFRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from csrf_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired csrf tokens: %w", err)
	}
	return res.RowsAffected()
}
