package domain

import "time"

// ClaimsVersion is bumped whenever the claim layout changes. Tokens carrying
// another version are rejected.
const ClaimsVersion = 1

// TokenType separates the access and refresh namespaces.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the verified content of an access or refresh token.
type Claims struct {
	Version   int
	Type      TokenType
	TokenID   string
	UserID    string
	Email     string
	RoleID    string
	Role      Role
	SessionID string
	IP        string
	UAHash    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is handed to the client after login, registration or refresh.
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	TokenType             string    `json:"tokenType"`
	ExpiresIn             int64     `json:"expiresIn"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	SessionID             string    `json:"sessionId"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User   *User     `json:"user"`
	Tokens TokenPair `json:"tokens"`
}
