package domain

import "time"

// CSRFToken is a single-use token proving a mutating request is not forged.
type CSRFToken struct {
	ID        string
	UserID    string
	Token     string
	IP        string
	UserAgent string
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry.
func (t *CSRFToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
