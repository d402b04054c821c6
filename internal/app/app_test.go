package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventops/auth-gateway/internal/api/middleware"
	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/service"
	"github.com/eventops/auth-gateway/internal/infrastructure/db/memory"
	"github.com/eventops/auth-gateway/internal/pkg/config"
)

const testUA = "scenario-agent/1.0"

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		Store:          config.StoreMemory,
		AuditSink:      config.SinkPostgres,
		AuditWorkers:   2,
		RequestTimeout: 5 * time.Second,
		SweepInterval:  time.Hour,
		JWT: config.JWTConfig{
			Secret:            "scenario-secret-0123456789abcdef",
			Issuer:            "eventops-auth",
			ExpiresIn:         "1h",
			RefreshExpiresIn:  "7d",
			RememberExpiresIn: "30d",
		},
		Security: config.SecurityConfig{
			BcryptCost:         bcrypt.MinCost,
			SessionTTL:         "24h",
			SessionRememberTTL: "30d",
			DefaultRole:        string(domain.RoleOnsite),
			IPCheck:            true,
			CSRFEnabled:        true,
			CSRFExemptPaths:    []string{"/health", "/docs", "/metrics"},
			CSRFTTL:            time.Hour,
			MaxLoginAttempts:   3,
			LockoutDuration:    15 * time.Minute,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

type gateway struct {
	t     *testing.T
	e     *echo.Echo
	store *memory.Store
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	store := memory.New()
	a, err := Assemble(testConfig(), MemoryStores(store), zerolog.Nop(), Options{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	t.Cleanup(func() {
		cancel()
		a.Close()
	})
	return &gateway{t: t, e: a.Echo, store: store}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// do sends a request from a single fixed client so session and CSRF bindings
// hold across calls.
func (g *gateway) do(method, path string, body any, headers map[string]string) (int, envelope) {
	g.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			g.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", testUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			g.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func (g *gateway) csrfToken(bearer string) string {
	g.t.Helper()
	headers := map[string]string{}
	if bearer != "" {
		headers[echo.HeaderAuthorization] = "Bearer " + bearer
	}
	code, env := g.do(http.MethodGet, "/auth/csrf-token", nil, headers)
	if code != http.StatusOK {
		g.t.Fatalf("csrf-token status = %d (%s)", code, env.Message)
	}
	var data struct {
		CSRFToken string `json:"csrfToken"`
	}
	mustDecode(g.t, env.Data, &data)
	return data.CSRFToken
}

// post sends a mutating request with a freshly issued CSRF token.
func (g *gateway) post(path string, body any, bearer string) (int, envelope) {
	g.t.Helper()
	headers := map[string]string{middleware.HeaderCSRFToken: g.csrfToken(bearer)}
	if bearer != "" {
		headers[echo.HeaderAuthorization] = "Bearer " + bearer
	}
	return g.do(http.MethodPost, path, body, headers)
}

func (g *gateway) login(email, password string) domain.TokenPair {
	g.t.Helper()
	code, env := g.post("/auth/login", map[string]any{"email": email, "password": password}, "")
	if code != http.StatusOK {
		g.t.Fatalf("login status = %d (%s: %s)", code, env.Error, env.Message)
	}
	var res struct {
		Tokens domain.TokenPair `json:"tokens"`
	}
	mustDecode(g.t, env.Data, &res)
	return res.Tokens
}

func (g *gateway) seedUser(email string, role domain.Role, password string) {
	g.t.Helper()
	ctx := context.Background()
	rec, err := g.store.Permissions.RoleByName(ctx, role)
	if err != nil {
		g.t.Fatalf("RoleByName: %v", err)
	}
	hash, err := service.NewPasswordHasher(bcrypt.MinCost).Hash(ctx, password)
	if err != nil {
		g.t.Fatalf("Hash: %v", err)
	}
	now := time.Now().UTC()
	if _, err := g.store.Users.Create(ctx, &domain.User{
		Email: email, Username: email, PasswordHash: hash, RoleID: rec.ID, Role: role,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		g.t.Fatalf("Create user: %v", err)
	}
}

func mustDecode(t *testing.T, raw json.RawMessage, into any) {
	t.Helper()
	if err := json.Unmarshal(raw, into); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func TestRegisterLoginProfile(t *testing.T) {
	g := newGateway(t)

	code, env := g.post("/auth/register", map[string]any{
		"email":    "ana@example.com",
		"username": "ana",
		"password": "Sup3rSecret",
	}, "")
	if code != http.StatusCreated {
		t.Fatalf("register status = %d (%s: %s)", code, env.Error, env.Message)
	}
	var reg domain.AuthResult
	mustDecode(t, env.Data, &reg)
	if reg.User == nil || reg.User.Role != domain.RoleOnsite {
		t.Fatalf("registered user = %+v, want default role", reg.User)
	}
	if bytes.Contains(env.Data, []byte("Sup3rSecret")) || bytes.Contains(env.Data, []byte("$2a$")) {
		t.Fatal("registration response leaks credentials")
	}

	tokens := g.login("ana@example.com", "Sup3rSecret")
	if tokens.SessionID == "" || tokens.SessionID == reg.Tokens.SessionID {
		t.Fatalf("login session %q must differ from registration session %q", tokens.SessionID, reg.Tokens.SessionID)
	}
	code, env = g.do(http.MethodGet, "/auth/profile", nil,
		map[string]string{echo.HeaderAuthorization: "Bearer " + tokens.AccessToken})
	if code != http.StatusOK {
		t.Fatalf("profile status = %d (%s)", code, env.Message)
	}
	var profile domain.User
	mustDecode(t, env.Data, &profile)
	if profile.Email != "ana@example.com" {
		t.Fatalf("profile email = %q", profile.Email)
	}

	code, _ = g.post("/auth/refresh", map[string]any{"refreshToken": tokens.RefreshToken}, "")
	if code != http.StatusOK {
		t.Fatalf("refresh status = %d", code)
	}
	code, env = g.post("/auth/refresh", map[string]any{"refreshToken": tokens.RefreshToken}, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d, want 401 (%s)", code, env.Message)
	}
}

func TestMutationWithoutCSRFToken(t *testing.T) {
	g := newGateway(t)

	code, env := g.do(http.MethodPost, "/auth/login",
		map[string]any{"email": "ana@example.com", "password": "Sup3rSecret"}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}
	if env.Message != "CSRF token missing" {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestCSRFTokenIsSingleUse(t *testing.T) {
	g := newGateway(t)
	g.seedUser("ana@example.com", domain.RoleOnsite, "Sup3rSecret")

	token := g.csrfToken("")
	body := map[string]any{"email": "ana@example.com", "password": "Sup3rSecret"}
	headers := map[string]string{middleware.HeaderCSRFToken: token}

	if code, env := g.do(http.MethodPost, "/auth/login", body, headers); code != http.StatusOK {
		t.Fatalf("first login status = %d (%s)", code, env.Message)
	}
	if code, _ := g.do(http.MethodPost, "/auth/login", body, headers); code != http.StatusForbidden {
		t.Fatalf("replayed token status = %d, want 403", code)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	g := newGateway(t)
	g.seedUser("ana@example.com", domain.RoleOnsite, "Sup3rSecret")

	wrong := map[string]any{"email": "ana@example.com", "password": "not-it-123"}
	for i := 0; i < 3; i++ {
		if code, _ := g.post("/auth/login", wrong, ""); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, code)
		}
	}

	code, env := g.post("/auth/login", map[string]any{"email": "ana@example.com", "password": "Sup3rSecret"}, "")
	if code != http.StatusForbidden {
		t.Fatalf("locked login status = %d, want 403", code)
	}
	if env.Message != "Account is temporarily locked" {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	g := newGateway(t)
	g.seedUser("ana@example.com", domain.RoleOnsite, "Sup3rSecret")
	tokens := g.login("ana@example.com", "Sup3rSecret")

	if code, env := g.post("/auth/logout", nil, tokens.AccessToken); code != http.StatusOK {
		t.Fatalf("logout status = %d (%s)", code, env.Message)
	}
	code, _ := g.do(http.MethodGet, "/auth/profile", nil,
		map[string]string{echo.HeaderAuthorization: "Bearer " + tokens.AccessToken})
	if code != http.StatusUnauthorized {
		t.Fatalf("profile after logout status = %d, want 401", code)
	}
}

func TestSecurityLogsRequireAdmin(t *testing.T) {
	g := newGateway(t)
	g.seedUser("root@example.com", domain.RoleAdmin, "Sup3rSecret")
	g.seedUser("staff@example.com", domain.RoleOnsite, "Sup3rSecret")

	admin := g.login("root@example.com", "Sup3rSecret")
	staff := g.login("staff@example.com", "Sup3rSecret")

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"admin", admin.AccessToken, http.StatusOK},
		{"onsite staff", staff.AccessToken, http.StatusForbidden},
		{"anonymous", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.bearer != "" {
				headers[echo.HeaderAuthorization] = "Bearer " + tt.bearer
			}
			code, env := g.do(http.MethodGet, "/admin/security-logs?limit=10", nil, headers)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", code, tt.want, env.Message)
			}
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	g := newGateway(t)
	for _, path := range []string{"/health", "/health/ready"} {
		if code, env := g.do(http.MethodGet, path, nil, nil); code != http.StatusOK {
			t.Fatalf("%s status = %d (%s)", path, code, env.Message)
		}
	}
}

func TestLockedAccountRejectsValidToken(t *testing.T) {
	g := newGateway(t)
	g.seedUser("ana@example.com", domain.RoleOnsite, "Sup3rSecret")
	tokens := g.login("ana@example.com", "Sup3rSecret")

	ctx := context.Background()
	u, err := g.store.Users.FindByEmail(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if _, err := g.store.Users.RecordFailedLogin(ctx, u.ID, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RecordFailedLogin: %v", err)
	}

	code, _ := g.do(http.MethodGet, "/auth/profile", nil,
		map[string]string{echo.HeaderAuthorization: "Bearer " + tokens.AccessToken})
	if code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}
}
