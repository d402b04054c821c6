package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eventops/auth-gateway/internal/core/ports"
)

var _ ports.TokenBlacklist = (*Blacklist)(nil)

// Blacklist is the relational token blacklist, used when Redis is not
// configured. Lookups ignore rows past their expiry.
type Blacklist struct {
	db  *sql.DB
	now func() time.Time
}

func NewBlacklist(db *sql.DB) *Blacklist {
	return &Blacklist{db: db, now: time.Now}
}

func (b *Blacklist) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, `
		select exists (select 1 from blacklisted_tokens where token_id = $1 and expires_at > $2)
	`, tokenID, b.now().UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return exists, nil
}

func (b *Blacklist) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := b.db.ExecContext(ctx, `
		insert into blacklisted_tokens (token_id, expires_at) values ($1, $2)
		on conflict (token_id) do nothing
	`, tokenID, expiresAt)
	if err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}
