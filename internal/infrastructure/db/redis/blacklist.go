package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// minBlacklistTTL keeps an entry around briefly even when the token is about
// to expire, so clock skew cannot reopen a revoked token.
const minBlacklistTTL = time.Second

// Blacklist records revoked token ids in Redis. Each key expires together with
// the token it revokes, so the set purges itself.
// Key format: blacklist:<token_id>
type Blacklist struct {
	client *redis.Client
	now    func() time.Time
}

// NewBlacklist creates a Blacklist wrapping the given Redis client.
func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client, now: time.Now}
}

// IsBlacklisted reports whether tokenID has been revoked.
func (b *Blacklist) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist check: %w", err)
	}
	return n > 0, nil
}

// Add revokes tokenID until expiresAt. Already expired tokens are not stored.
func (b *Blacklist) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if ttl < minBlacklistTTL {
		ttl = minBlacklistTTL
	}
	if err := b.client.Set(ctx, b.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

func (b *Blacklist) key(tokenID string) string {
	return "blacklist:" + tokenID
}
