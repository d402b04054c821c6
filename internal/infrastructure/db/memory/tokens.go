package memory

import (
	"context"
	"sync"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

// Blacklist implements ports.TokenBlacklist. Entries past their expiry are
// ignored and purged lazily.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewBlacklist returns an empty Blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time), now: time.Now}
}

func (b *Blacklist) IsBlacklisted(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !b.now().Before(exp) {
		delete(b.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (b *Blacklist) Add(_ context.Context, tokenID string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = expiresAt
	return nil
}

// CSRFStore implements ports.CSRFRepository.
type CSRFStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.CSRFToken
}

// NewCSRFStore returns an empty CSRFStore.
func NewCSRFStore() *CSRFStore {
	return &CSRFStore{tokens: make(map[string]*domain.CSRFToken)}
}

func (s *CSRFStore) Create(_ context.Context, token *domain.CSRFToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *token
	s.tokens[token.Token] = &c
	return nil
}

func (s *CSRFStore) FindByToken(_ context.Context, value string) (*domain.CSRFToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, domain.ErrCSRFNotFound
	}
	c := *t
	return &c, nil
}

func (s *CSRFStore) MarkUsed(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	return true, nil
}

func (s *CSRFStore) Delete(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, value)
	return nil
}

func (s *CSRFStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}
