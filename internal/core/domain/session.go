package domain

import "time"

// ClientInfo describes the device a request came from.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Session is one authenticated device/browser login.
// RefreshTokenHash holds the digest of the only refresh token currently valid
// for the session.
type Session struct {
	ID               string
	UserID           string
	SessionToken     string
	RefreshTokenHash string
	RememberMe       bool
	IP               string
	UserAgent        string
	IsActive         bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
	LastActivityAt   time.Time
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Usable reports whether the session may still authenticate requests.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}

// SessionInfo is the client-facing view of a session. It never carries tokens.
type SessionInfo struct {
	ID             string    `json:"id"`
	IP             string    `json:"ip,omitempty"`
	UserAgent      string    `json:"userAgent,omitempty"`
	RememberMe     bool      `json:"rememberMe"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Current        bool      `json:"current"`
}

// Info converts the session into its client-facing view.
func (s *Session) Info(currentID string) SessionInfo {
	return SessionInfo{
		ID:             s.ID,
		IP:             s.IP,
		UserAgent:      s.UserAgent,
		RememberMe:     s.RememberMe,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		Current:        s.ID == currentID,
	}
}
