package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
)

const (
	// DefaultIssuer is the iss claim when none is configured.
	DefaultIssuer = "eventops-auth"

	refreshKeyLabel = "eventops-auth/refresh-token-key"
	maxLeeway       = 2 * time.Minute
)

// TokenConfig configures token signing and lifetimes.
type TokenConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberTTL   time.Duration
	Leeway        time.Duration
}

// TokenService issues and verifies HS256 access and refresh tokens. The two
// token types use distinct keys and audiences, so one is never accepted as
// the other.
type TokenService struct {
	cfg        TokenConfig
	accessKey  []byte
	refreshKey []byte
	now        func() time.Time
}

// tokenClaims is the wire layout of both token types.
type tokenClaims struct {
	Version   int              `json:"ver"`
	Type      domain.TokenType `json:"typ"`
	Email     string           `json:"email,omitempty"`
	RoleID    string           `json:"rid,omitempty"`
	Role      domain.Role      `json:"role,omitempty"`
	SessionID string           `json:"sid"`
	IP        string           `json:"ip,omitempty"`
	UAHash    string           `json:"uah,omitempty"`
	jwt.RegisteredClaims
}

// NewTokenService validates cfg and derives the signing keys. Without a
// refresh secret the refresh key is an HMAC derivation of the access secret.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, errors.New("token service: access secret is required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("token service: leeway must be between 0 and %s", maxLeeway)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = 30 * 24 * time.Hour
	}

	refreshKey := []byte(cfg.RefreshSecret)
	if len(refreshKey) == 0 || cfg.RefreshSecret == cfg.AccessSecret {
		mac := hmac.New(sha256.New, []byte(cfg.AccessSecret))
		mac.Write([]byte(refreshKeyLabel))
		refreshKey = mac.Sum(nil)
	}

	return &TokenService{
		cfg:        cfg,
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: refreshKey,
		now:        time.Now,
	}, nil
}

// AccessTTL is the lifetime of access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL is the lifetime of refresh tokens for the given remember-me choice.
func (s *TokenService) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RememberTTL
	}
	return s.cfg.RefreshTTL
}

// AcceptedUntil is the last instant a token expiring at exp still verifies.
func (s *TokenService) AcceptedUntil(exp time.Time) time.Time {
	return exp.Add(s.cfg.Leeway)
}

// IssueAccessToken signs an access token for c. TokenID, IssuedAt and
// ExpiresAt are filled in; the completed claims are returned.
func (s *TokenService) IssueAccessToken(c domain.Claims) (string, domain.Claims, error) {
	return s.issue(c, domain.TokenTypeAccess, s.cfg.AccessTTL)
}

// IssueRefreshToken signs a refresh token for c with the normal or
// remember-me lifetime.
func (s *TokenService) IssueRefreshToken(c domain.Claims, rememberMe bool) (string, domain.Claims, error) {
	return s.issue(c, domain.TokenTypeRefresh, s.RefreshTTL(rememberMe))
}

func (s *TokenService) issue(c domain.Claims, typ domain.TokenType, ttl time.Duration) (string, domain.Claims, error) {
	if c.UserID == "" || c.SessionID == "" {
		return "", domain.Claims{}, errors.New("token service: user and session are required")
	}
	now := s.now().UTC().Truncate(time.Second)
	c.Version = domain.ClaimsVersion
	c.Type = typ
	c.TokenID = ids.NewUUID()
	c.IssuedAt = now
	c.ExpiresAt = now.Add(ttl)

	claims := tokenClaims{
		Version:   c.Version,
		Type:      typ,
		Email:     c.Email,
		RoleID:    c.RoleID,
		Role:      c.Role,
		SessionID: c.SessionID,
		IP:        c.IP,
		UAHash:    c.UAHash,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.TokenID,
			Subject:   c.UserID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.audience(typ)},
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			NotBefore: jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key(typ))
	if err != nil {
		return "", domain.Claims{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, c, nil
}

// VerifyAccessToken checks an access token and returns its claims.
func (s *TokenService) VerifyAccessToken(token string) (*domain.Claims, error) {
	return s.verify(token, domain.TokenTypeAccess)
}

// VerifyRefreshToken checks a refresh token and returns its claims.
func (s *TokenService) VerifyRefreshToken(token string) (*domain.Claims, error) {
	return s.verify(token, domain.TokenTypeRefresh)
}

func (s *TokenService) verify(token string, typ domain.TokenType) (*domain.Claims, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.audience(typ)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(s.cfg.Leeway))
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key(typ), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !parsed.Valid ||
		claims.Type != typ ||
		claims.Version != domain.ClaimsVersion ||
		claims.Subject == "" ||
		claims.SessionID == "" ||
		claims.ID == "" {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.Claims{
		Version:   claims.Version,
		Type:      claims.Type,
		TokenID:   claims.ID,
		UserID:    claims.Subject,
		Email:     claims.Email,
		RoleID:    claims.RoleID,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		IP:        claims.IP,
		UAHash:    claims.UAHash,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

func (s *TokenService) key(typ domain.TokenType) []byte {
	if typ == domain.TokenTypeRefresh {
		return s.refreshKey
	}
	return s.accessKey
}

func (s *TokenService) audience(typ domain.TokenType) string {
	return s.cfg.Issuer + ":" + string(typ)
}

// ExtractBearer returns the token of a "Bearer <token>" header. The scheme is
// case-insensitive; any other shape yields ("", false).
func ExtractBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// HashToken returns the hex SHA-256 digest of a token. Sessions store refresh
// tokens only in this form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashUserAgent returns the digest embedded in tokens to bind them to a
// client without carrying the raw header.
func HashUserAgent(ua string) string {
	if ua == "" {
		return ""
	}
	return HashToken(ua)
}
