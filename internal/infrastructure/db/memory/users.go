// Package memory provides in-process implementations of the credential store
// ports. They back the service and HTTP scenario tests and can run the
// gateway without external databases (STORE=memory).
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
)

// UserStore implements ports.UserRepository.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserStore returns an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

func (s *UserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *UserStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return nil, domain.ErrUserAlreadyExists
		}
	}
	c := cloneUser(user)
	if c.ID == "" {
		c.ID = ids.NewUUID()
	}
	s.users[c.ID] = c
	return cloneUser(c), nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.update(id, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = time.Now().UTC()
	})
}

func (s *UserStore) RecordFailedLogin(_ context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error) {
	var attempts int
	err := s.update(id, func(u *domain.User) {
		u.FailedLoginAttempts++
		attempts = u.FailedLoginAttempts
		if maxAttempts > 0 && u.FailedLoginAttempts >= maxAttempts {
			t := lockUntil
			u.LockedUntil = &t
		}
	})
	return attempts, err
}

func (s *UserStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *domain.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		t := at
		u.LastLoginAt = &t
	})
}

func (s *UserStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *domain.User) {
		t := at
		u.LastLoginAt = &t
	})
}

// Put stores user as-is, replacing any user with the same id. Tests use it to
// set up lockout, soft-delete and deactivation states.
func (s *UserStore) Put(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
}

func (s *UserStore) update(id string, fn func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	return nil
}
