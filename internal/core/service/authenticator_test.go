package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

type failingBlacklist struct{}

func (failingBlacklist) IsBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("blacklist unavailable")
}

func (failingBlacklist) Add(context.Context, string, time.Time) error {
	return errors.New("blacklist unavailable")
}

func authRequest(token string, client domain.ClientInfo) ports.AuthRequest {
	return ports.AuthRequest{Authorization: bearer(token), Client: client}
}

func TestAuthenticator_Success(t *testing.T) {
	st := newStack(t)
	user := st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
	res := st.login(t, "alice@example.com", "Secret123", userClient)

	st.clock.Advance(time.Minute)
	id, err := st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, userClient))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != user.ID || id.Role != domain.RoleOnsite || id.SessionID != res.Tokens.SessionID {
		t.Errorf("unexpected identity %+v", id)
	}
	if !id.Permissions.Allows("task", "update") || id.Permissions.Allows("task", "delete") {
		t.Errorf("unexpected permissions %v", id.Permissions.Strings())
	}
	if id.TokenID == "" || id.TokenExpiresAt.IsZero() {
		t.Error("identity should carry the token id and expiry")
	}

	session, _ := st.store.Sessions.FindByID(context.Background(), res.Tokens.SessionID)
	if !session.LastActivityAt.Equal(st.clock.Now()) {
		t.Errorf("session activity not touched: %s", session.LastActivityAt)
	}
}

func TestAuthenticator_HeaderShape(t *testing.T) {
	st := newStack(t)

	tests := map[string]string{
		"missing":      "",
		"basic scheme": "Basic dXNlcjpwYXNz",
		"no token":     "Bearer ",
		"garbage":      "Bearer not-a-token",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := st.authn.Authenticate(context.Background(), ports.AuthRequest{Authorization: header, Client: userClient})
			if !errors.Is(err, domain.ErrTokenInvalid) {
				t.Fatalf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestAuthenticator_Expired(t *testing.T) {
	st := newStack(t)
	st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
	res := st.login(t, "alice@example.com", "Secret123", userClient)

	st.clock.Advance(2 * time.Hour)
	_, err := st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, userClient))
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	entry, ok := st.auditor.last(domain.ActivityTokenValidation)
	if !ok || entry.Details["reason"] != "expired" || entry.UserID != domain.UnknownUser {
		t.Errorf("unexpected audit entry %+v (found=%v)", entry, ok)
	}
}

func TestAuthenticator_UserState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(u *domain.User, now time.Time)
		want   error
	}{
		{"inactive", func(u *domain.User, _ time.Time) { u.IsActive = false }, domain.ErrUserInactive},
		{"deleted", func(u *domain.User, now time.Time) { u.DeletedAt = &now }, domain.ErrUserNotFound},
		{"locked", func(u *domain.User, now time.Time) {
			until := now.Add(10 * time.Minute)
			u.LockedUntil = &until
		}, domain.ErrAccountLocked},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newStack(t)
			user := st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
			res := st.login(t, "alice@example.com", "Secret123", userClient)

			stored, _ := st.store.Users.FindByID(context.Background(), user.ID)
			tc.mutate(stored, st.clock.Now())
			st.store.Users.Put(stored)

			_, err := st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, userClient))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthenticator_LockedAccountIsAudited(t *testing.T) {
	st := newStack(t)
	user := st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
	res := st.login(t, "alice@example.com", "Secret123", userClient)

	until := st.clock.Now().Add(time.Minute)
	stored, _ := st.store.Users.FindByID(context.Background(), user.ID)
	stored.LockedUntil = &until
	st.store.Users.Put(stored)

	_, _ = st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, userClient))
	if st.auditor.count(domain.ActivityLockedAccountToken) != 1 {
		t.Fatal("expected a locked_account_access entry")
	}
}

func TestAuthenticator_BlacklistFailureRejects(t *testing.T) {
	st := newStack(t)
	st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
	res := st.login(t, "alice@example.com", "Secret123", userClient)

	authn := NewAuthenticator(AuthenticatorDeps{
		Tokens:      st.tokens,
		Sessions:    st.sessions,
		Users:       st.store.Users,
		Permissions: st.store.Permissions,
		Blacklist:   failingBlacklist{},
		Auditor:     st.auditor,
	}, true, zerolog.Nop())

	_, err := authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, userClient))
	if !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestAuthenticator_IPBinding(t *testing.T) {
	moved := domain.ClientInfo{IP: "203.0.113.9", UserAgent: "ua-admin"}

	t.Run("privileged role is rejected", func(t *testing.T) {
		st := newStack(t)
		st.seedUser(t, "root@example.com", domain.RoleAdmin, "Secret123")
		res := st.login(t, "root@example.com", "Secret123", adminClient)

		_, err := st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, moved))
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		entry, ok := st.auditor.last(domain.ActivityIPMismatch)
		if !ok || entry.Severity != domain.SeverityHigh {
			t.Errorf("expected a high severity ip_mismatch entry, got %+v", entry)
		}
	})

	t.Run("regular role is only logged", func(t *testing.T) {
		st := newStack(t)
		st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
		res := st.login(t, "alice@example.com", "Secret123", userClient)

		other := domain.ClientInfo{IP: "203.0.113.9", UserAgent: userClient.UserAgent}
		if _, err := st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, other)); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		entry, ok := st.auditor.last(domain.ActivityIPMismatch)
		if !ok || entry.Severity != domain.SeverityMedium {
			t.Errorf("expected a medium severity ip_mismatch entry, got %+v", entry)
		}
	})

	t.Run("check disabled", func(t *testing.T) {
		st := newStack(t)
		st.seedUser(t, "root@example.com", domain.RoleAdmin, "Secret123")
		res := st.login(t, "root@example.com", "Secret123", adminClient)

		authn := NewAuthenticator(AuthenticatorDeps{
			Tokens:      st.tokens,
			Sessions:    st.sessions,
			Users:       st.store.Users,
			Permissions: st.store.Permissions,
			Blacklist:   st.store.Blacklist,
			Auditor:     st.auditor,
		}, false, zerolog.Nop())

		if _, err := authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, moved)); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	})
}

func TestAuthenticator_UserAgentMismatchIsLogged(t *testing.T) {
	st := newStack(t)
	st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
	res := st.login(t, "alice@example.com", "Secret123", userClient)

	client := domain.ClientInfo{IP: userClient.IP, UserAgent: "curl/8.0"}
	if _, err := st.authn.Authenticate(context.Background(), authRequest(res.Tokens.AccessToken, client)); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if st.auditor.count(domain.ActivityUserAgentMismatch) != 1 {
		t.Error("expected a user_agent_mismatch entry")
	}
}

func TestAuthenticator_Optional(t *testing.T) {
	st := newStack(t)
	st.seedUser(t, "alice@example.com", domain.RoleOnsite, "Secret123")
	res := st.login(t, "alice@example.com", "Secret123", userClient)
	ctx := context.Background()

	id, err := st.authn.AuthenticateOptional(ctx, ports.AuthRequest{Client: userClient})
	if id != nil || err != nil {
		t.Errorf("no header: got %v, %v", id, err)
	}
	id, err = st.authn.AuthenticateOptional(ctx, authRequest("garbage", userClient))
	if id != nil || err != nil {
		t.Errorf("garbage token: got %v, %v", id, err)
	}
	for _, header := range []string{"Basic Zm9vOmJhcg==", "Bearer", "Token abc"} {
		id, err = st.authn.AuthenticateOptional(ctx, ports.AuthRequest{Authorization: header, Client: userClient})
		if id != nil || !errors.Is(err, domain.ErrTokenInvalid) {
			t.Errorf("%q: got %v, %v, want ErrTokenInvalid", header, id, err)
		}
	}
	id, err = st.authn.AuthenticateOptional(ctx, authRequest(res.Tokens.AccessToken, userClient))
	if err != nil || id == nil {
		t.Fatalf("valid token: got %v, %v", id, err)
	}

	if err := st.auth.Logout(ctx, id); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := st.authn.AuthenticateOptional(ctx, authRequest(res.Tokens.AccessToken, userClient)); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Errorf("revoked token: expected ErrTokenRevoked, got %v", err)
	}
}
