package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

func TestSweeper_SweepOnce(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	now := st.clock.Now()

	st.store.Sessions.Put(&domain.Session{ID: "dead", UserID: "u1", IsActive: false, ExpiresAt: now.Add(-time.Minute)})
	st.store.Sessions.Put(&domain.Session{ID: "revoked", UserID: "u1", IsActive: false, ExpiresAt: now.Add(time.Hour)})
	st.store.Sessions.Put(&domain.Session{ID: "live", UserID: "u1", IsActive: true, ExpiresAt: now.Add(time.Hour)})

	stale, _ := st.csrf.Issue(ctx, "", userClient)
	st.clock.Advance(2 * time.Hour)
	fresh, _ := st.csrf.Issue(ctx, "", userClient)

	sw := NewSweeper(st.sessions, st.store.CSRF, time.Minute, zerolog.Nop())
	sw.now = st.clock.Now
	sw.SweepOnce(ctx)

	if _, err := st.store.Sessions.FindByID(ctx, "dead"); err == nil {
		t.Error("expired inactive session should be deleted")
	}
	if _, err := st.store.Sessions.FindByID(ctx, "live"); err != nil {
		t.Errorf("live session deleted: %v", err)
	}
	if _, err := st.store.CSRF.FindByToken(ctx, stale.Token); err == nil {
		t.Error("expired csrf token should be deleted")
	}
	if _, err := st.store.CSRF.FindByToken(ctx, fresh.Token); err != nil {
		t.Errorf("fresh csrf token deleted: %v", err)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	st := newStack(t)
	sw := NewSweeper(st.sessions, nil, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
