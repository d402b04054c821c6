package memory

import (
	"context"
	"sync"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

// SecurityLogStore implements ports.SecurityLogRepository.
type SecurityLogStore struct {
	mu      sync.RWMutex
	entries []*domain.SecurityLogEntry
}

// NewSecurityLogStore returns an empty SecurityLogStore.
func NewSecurityLogStore() *SecurityLogStore {
	return &SecurityLogStore{}
}

func (s *SecurityLogStore) Append(_ context.Context, entry *domain.SecurityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.entries = append(s.entries, &c)
	return nil
}

// List returns matching entries newest first.
func (s *SecurityLogStore) List(_ context.Context, f domain.SecurityLogFilter) ([]*domain.SecurityLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.SecurityLogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Activity != "" && e.Activity != f.Activity {
			continue
		}
		if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
			continue
		}
		c := *e
		out = append(out, &c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Entries returns every stored entry in insertion order.
func (s *SecurityLogStore) Entries() []domain.SecurityLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SecurityLogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// ResourceOwners implements ports.ResourceOwnerRepository over a fixed table.
// Sessions are resolved from the session store so ownership of real sessions
// works without extra setup.
type ResourceOwners struct {
	mu       sync.RWMutex
	owners   map[string]string
	sessions *SessionStore
}

// NewResourceOwners returns an owner table backed by sessions for the
// "session" resource type.
func NewResourceOwners(sessions *SessionStore) *ResourceOwners {
	return &ResourceOwners{owners: make(map[string]string), sessions: sessions}
}

// Set records ownerID as the owner of resourceType/resourceID.
func (r *ResourceOwners) Set(resourceType, resourceID, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[resourceType+"/"+resourceID] = ownerID
}

func (r *ResourceOwners) OwnerOf(ctx context.Context, resourceType, resourceID string) (string, error) {
	if resourceType == "session" && r.sessions != nil {
		sess, err := r.sessions.FindByID(ctx, resourceID)
		if err != nil {
			return "", domain.ErrResourceNotFound
		}
		return sess.UserID, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[resourceType+"/"+resourceID]
	if !ok {
		return "", domain.ErrResourceNotFound
	}
	return owner, nil
}
