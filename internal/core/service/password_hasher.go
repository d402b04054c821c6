package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

// DefaultBcryptCost is used when no valid cost is configured.
const DefaultBcryptCost = 12

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// PasswordHasher hashes and verifies passwords with bcrypt. Work runs on a
// separate goroutine so a cancelled request does not wait on the hash.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordHasher returns a hasher using cost, or DefaultBcryptCost when
// cost is outside bcrypt's accepted range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Cost returns the configured work factor.
func (h *PasswordHasher) Cost() int { return h.cost }

type hashResult struct {
	hash []byte
	err  error
}

// Hash returns the bcrypt hash of password.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	ch := make(chan hashResult, 1)
	go func() {
		b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
		ch <- hashResult{hash: b, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrHashing, r.err)
		}
		return string(r.hash), nil
	}
}

// Verify reports whether password matches hash. A mismatch is (false, nil);
// a hash bcrypt cannot parse is domain.ErrInvalidHashFormat.
func (h *PasswordHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	ch := make(chan error, 1)
	go func() {
		ch <- bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-ch:
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", domain.ErrInvalidHashFormat, err)
		}
	}
}

// NeedsRehash reports whether hash was produced with a different cost than
// the configured one, or cannot be parsed at all.
func (h *PasswordHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}

// VerifyDummy burns the same work as a real verification. Login calls it for
// unknown accounts so response time does not reveal which e-mails exist.
func (h *PasswordHasher) VerifyDummy(ctx context.Context, password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.cost)
	})
	_, _ = h.Verify(ctx, password, string(h.dummy))
}

// ValidatePassword enforces the password policy: 8 to 72 bytes containing at
// least one letter and one digit.
func ValidatePassword(field, password string) error {
	if len(password) < minPasswordLength {
		return domain.NewValidationError(field, fmt.Sprintf("%s must be at least %d characters", field, minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return domain.NewValidationError(field, fmt.Sprintf("%s must be at most %d bytes", field, maxPasswordLength))
	}
	if !IsStrongPassword(password) {
		return domain.NewValidationError(field, field+" must contain at least one letter and one digit")
	}
	return nil
}

// IsStrongPassword reports whether password mixes letters and digits.
func IsStrongPassword(password string) bool {
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
