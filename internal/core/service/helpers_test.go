package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/infrastructure/db/memory"
)

const testSecret = "test-access-secret-0123456789abcdef"

var (
	adminClient = domain.ClientInfo{IP: "10.0.0.1", UserAgent: "ua-admin"}
	userClient  = domain.ClientInfo{IP: "10.0.0.2", UserAgent: "ua-user"}
)

// recordingAuditor collects entries synchronously.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []domain.SecurityLogEntry
}

func (a *recordingAuditor) Record(_ context.Context, e domain.SecurityLogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) count(activity domain.Activity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.Activity == activity {
			n++
		}
	}
	return n
}

func (a *recordingAuditor) last(activity domain.Activity) (domain.SecurityLogEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Activity == activity {
			return a.entries[i], true
		}
	}
	return domain.SecurityLogEntry{}, false
}

// clock is a settable time source shared by every component of a stack. It
// starts at the wall clock because the in-memory blacklist expires entries
// against real time.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// stack is a fully wired service layer over the in-memory store.
type stack struct {
	store    *memory.Store
	auditor  *recordingAuditor
	clock    *clock
	tokens   *TokenService
	sessions *SessionManager
	hasher   *PasswordHasher
	auth     *authService
	authn    *authenticator
	authz    *authorizer
	csrf     *csrfService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	st := &stack{
		store:   memory.New(),
		auditor: &recordingAuditor{},
		clock:   newClock(),
		hasher:  NewPasswordHasher(bcrypt.MinCost),
	}

	tokens, err := NewTokenService(TokenConfig{AccessSecret: testSecret})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	tokens.now = st.clock.Now
	st.tokens = tokens

	st.sessions = NewSessionManager(st.store.Sessions, tokens, SessionConfig{}, zerolog.Nop())
	st.sessions.now = st.clock.Now

	st.auth = NewAuthService(AuthDeps{
		Users:       st.store.Users,
		Permissions: st.store.Permissions,
		Blacklist:   st.store.Blacklist,
		Tokens:      tokens,
		Sessions:    st.sessions,
		Hasher:      st.hasher,
		Auditor:     st.auditor,
	}, AuthConfig{}, zerolog.Nop()).(*authService)
	st.auth.now = st.clock.Now

	st.authn = NewAuthenticator(AuthenticatorDeps{
		Tokens:      tokens,
		Sessions:    st.sessions,
		Users:       st.store.Users,
		Permissions: st.store.Permissions,
		Blacklist:   st.store.Blacklist,
		Auditor:     st.auditor,
	}, true, zerolog.Nop()).(*authenticator)
	st.authn.now = st.clock.Now

	st.authz = NewAuthorizer(st.store.Permissions, st.store.Owners).(*authorizer)
	st.authz.now = st.clock.Now

	st.csrf = NewCSRFService(st.store.CSRF, st.auditor, time.Hour, zerolog.Nop()).(*csrfService)
	st.csrf.now = st.clock.Now

	return st
}

// seedUser stores an active user with the given role and password.
func (st *stack) seedUser(t *testing.T, email string, role domain.Role, password string) *domain.User {
	t.Helper()
	rec, err := st.store.Permissions.RoleByName(context.Background(), role)
	if err != nil {
		t.Fatalf("RoleByName(%s): %v", role, err)
	}
	hash, err := st.hasher.Hash(context.Background(), password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := st.clock.Now()
	u := &domain.User{
		Email:        email,
		Username:     email[:len(email)-len("@example.com")],
		PasswordHash: hash,
		RoleID:       rec.ID,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := st.store.Users.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return created
}

// login opens a session for an existing user and returns the result.
func (st *stack) login(t *testing.T, email, password string, client domain.ClientInfo) *domain.AuthResult {
	t.Helper()
	res, err := st.auth.Login(context.Background(), loginInput(email, password, client))
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

func loginInput(email, password string, client domain.ClientInfo) ports.LoginInput {
	return ports.LoginInput{Email: email, Password: password, Client: client}
}

func bearer(token string) string { return "Bearer " + token }
