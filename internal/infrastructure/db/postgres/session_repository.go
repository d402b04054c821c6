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

var _ ports.SessionRepository = (*SessionRepository)(nil)

const selectSession = `
	select id, user_id, session_token, refresh_token_hash, remember_me, ip_address,
	       user_agent, is_active, created_at, expires_at, last_activity_at
	from sessions`

// SessionRepository stores sessions in the sessions table. Rows are
// deactivated on revocation and only deleted by DeleteExpiredInactive.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		insert into sessions (id, user_id, session_token, refresh_token_hash, remember_me, ip_address,
		                      user_agent, is_active, created_at, expires_at, last_activity_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.UserID, s.SessionToken, s.RefreshTokenHash, s.RememberMe, s.IP,
		s.UserAgent, s.IsActive, s.CreatedAt, s.ExpiresAt, s.LastActivityAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+` where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) FindActiveByRefresh(ctx context.Context, id, refreshHash string, now time.Time) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+`
		where id = $1 and refresh_token_hash = $2 and is_active and expires_at > $3`,
		id, refreshHash, now))
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session by refresh: %w", err)
	}
	return s, nil
}

// RotateRefresh is a compare-and-swap on the stored digest.
func (r *SessionRepository) RotateRefresh(ctx context.Context, id, oldHash, newHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		update sessions
		set refresh_token_hash = $3, last_activity_at = $4
		where id = $1 and refresh_token_hash = $2 and is_active and expires_at > $4
	`, id, oldHash, newHash, now)
	if err != nil {
		return false, fmt.Errorf("rotate refresh: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh: %w", err)
	}
	return n == 1, nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `update sessions set is_active = false where id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return expectOne(res, domain.ErrSessionNotFound)
}

func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `update sessions set is_active = false where user_id = $1 and is_active`, userID)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *SessionRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, selectSession+`
		where user_id = $1 and is_active and expires_at > $2
		order by last_activity_at desc`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `update sessions set last_activity_at = $2 where id = $1`, id, at); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpiredInactive(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where not is_active and expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.RefreshTokenHash, &s.RememberMe, &s.IP,
		&s.UserAgent, &s.IsActive, &s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt,
	); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastActivityAt = s.LastActivityAt.UTC()
	return &s, nil
}
