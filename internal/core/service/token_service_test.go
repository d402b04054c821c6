package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

func newTestTokens(t *testing.T, cfg TokenConfig) (*TokenService, *clock) {
	t.Helper()
	if cfg.AccessSecret == "" {
		cfg.AccessSecret = testSecret
	}
	ts, err := NewTokenService(cfg)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	c := newClock()
	ts.now = c.Now
	return ts, c
}

func baseClaims() domain.Claims {
	return domain.Claims{
		UserID:    "user-1",
		Email:     "alice@example.com",
		RoleID:    "role-1",
		Role:      domain.RoleOnsite,
		SessionID: "session-1",
		IP:        "10.0.0.2",
		UAHash:    HashUserAgent("ua-user"),
	}
}

func TestTokenService_AccessRoundTrip(t *testing.T) {
	ts, c := newTestTokens(t, TokenConfig{})

	token, issued, err := ts.IssueAccessToken(baseClaims())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if issued.TokenID == "" {
		t.Fatal("expected a token id")
	}
	if want := c.Now().Add(time.Hour); !issued.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %s, want %s", issued.ExpiresAt, want)
	}

	got, err := ts.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if got.UserID != "user-1" || got.SessionID != "session-1" || got.Role != domain.RoleOnsite {
		t.Errorf("unexpected claims %+v", got)
	}
	if got.TokenID != issued.TokenID || got.Type != domain.TokenTypeAccess || got.Version != domain.ClaimsVersion {
		t.Errorf("claims metadata mismatch: %+v", got)
	}
}

func TestTokenService_TypesAreNotInterchangeable(t *testing.T) {
	ts, _ := newTestTokens(t, TokenConfig{})

	access, _, err := ts.IssueAccessToken(baseClaims())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	refresh, _, err := ts.IssueRefreshToken(baseClaims(), false)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	if _, err := ts.VerifyRefreshToken(access); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
	if _, err := ts.VerifyAccessToken(refresh); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("refresh token accepted as access: %v", err)
	}
	if _, err := ts.VerifyRefreshToken(refresh); err != nil {
		t.Errorf("VerifyRefreshToken: %v", err)
	}
}

func TestTokenService_Expired(t *testing.T) {
	ts, c := newTestTokens(t, TokenConfig{AccessTTL: time.Minute})

	token, _, err := ts.IssueAccessToken(baseClaims())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	c.Advance(time.Minute + time.Second)

	if _, err := ts.VerifyAccessToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenService_LeewayAcceptsRecentlyExpired(t *testing.T) {
	ts, c := newTestTokens(t, TokenConfig{AccessTTL: time.Minute, Leeway: 30 * time.Second})

	token, _, err := ts.IssueAccessToken(baseClaims())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	c.Advance(time.Minute + 10*time.Second)

	if _, err := ts.VerifyAccessToken(token); err != nil {
		t.Fatalf("token within leeway rejected: %v", err)
	}
}

func TestTokenService_NoLeewayByDefault(t *testing.T) {
	ts, c := newTestTokens(t, TokenConfig{AccessTTL: time.Minute})

	token, claims, err := ts.IssueAccessToken(baseClaims())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if !ts.AcceptedUntil(claims.ExpiresAt).Equal(claims.ExpiresAt) {
		t.Fatal("without leeway a token is accepted only until exp")
	}
	c.Advance(time.Minute + time.Second)

	if _, err := ts.VerifyAccessToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenService_RejectsForgeries(t *testing.T) {
	ts, _ := newTestTokens(t, TokenConfig{})
	token, _, err := ts.IssueAccessToken(baseClaims())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	other, _ := newTestTokens(t, TokenConfig{AccessSecret: "another-secret-entirely-0123456789"})
	otherToken, _, _ := other.IssueAccessToken(baseClaims())

	otherIssuer, _ := newTestTokens(t, TokenConfig{Issuer: "someone-else"})
	otherIssuerToken, _, _ := otherIssuer.IssueAccessToken(baseClaims())

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
		Version:   domain.ClaimsVersion,
		Type:      domain.TokenTypeAccess,
		SessionID: "session-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "id",
			Subject:   "user-1",
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{DefaultIssuer + ":access"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"tampered":     tampered,
		"wrong secret": otherToken,
		"wrong issuer": otherIssuerToken,
		"alg none":     none,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ts.VerifyAccessToken(tok); !errors.Is(err, domain.ErrTokenInvalid) {
				t.Fatalf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestTokenService_DerivedRefreshKey(t *testing.T) {
	ts, _ := newTestTokens(t, TokenConfig{})
	if string(ts.refreshKey) == string(ts.accessKey) {
		t.Fatal("refresh key must differ from the access key")
	}

	same, _ := newTestTokens(t, TokenConfig{RefreshSecret: testSecret})
	if string(same.refreshKey) == string(same.accessKey) {
		t.Fatal("identical secrets must still yield distinct keys")
	}

	explicit, _ := newTestTokens(t, TokenConfig{RefreshSecret: "refresh-secret-0123456789abcdef"})
	if string(explicit.refreshKey) != "refresh-secret-0123456789abcdef" {
		t.Fatal("explicit refresh secret should be used as is")
	}
}

func TestTokenService_RememberTTL(t *testing.T) {
	ts, c := newTestTokens(t, TokenConfig{RefreshTTL: 7 * 24 * time.Hour, RememberTTL: 30 * 24 * time.Hour})

	_, normal, err := ts.IssueRefreshToken(baseClaims(), false)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	_, remembered, err := ts.IssueRefreshToken(baseClaims(), true)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	if want := c.Now().Add(7 * 24 * time.Hour); !normal.ExpiresAt.Equal(want) {
		t.Errorf("normal refresh expiry = %s, want %s", normal.ExpiresAt, want)
	}
	if want := c.Now().Add(30 * 24 * time.Hour); !remembered.ExpiresAt.Equal(want) {
		t.Errorf("remember-me refresh expiry = %s, want %s", remembered.ExpiresAt, want)
	}
}

func TestNewTokenService_Validation(t *testing.T) {
	if _, err := NewTokenService(TokenConfig{AccessSecret: "   "}); err == nil {
		t.Error("expected an error for a blank secret")
	}
	if _, err := NewTokenService(TokenConfig{AccessSecret: testSecret, Leeway: 3 * time.Minute}); err == nil {
		t.Error("expected an error for an oversized leeway")
	}
}

func TestTokenService_IssueRequiresSubjectAndSession(t *testing.T) {
	ts, _ := newTestTokens(t, TokenConfig{})

	c := baseClaims()
	c.SessionID = ""
	if _, _, err := ts.IssueAccessToken(c); err == nil {
		t.Error("expected an error without a session id")
	}
	c = baseClaims()
	c.UserID = ""
	if _, _, err := ts.IssueRefreshToken(c, false); err == nil {
		t.Error("expected an error without a user id")
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Bearer a b", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		got, ok := ExtractBearer(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ExtractBearer(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHashUserAgent(t *testing.T) {
	if HashUserAgent("") != "" {
		t.Error("empty user agent should hash to empty")
	}
	if HashUserAgent("a") == HashUserAgent("b") {
		t.Error("distinct user agents must hash differently")
	}
	if len(HashToken("x")) != 64 {
		t.Error("expected a hex sha256 digest")
	}
}
