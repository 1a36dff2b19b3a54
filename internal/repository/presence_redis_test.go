package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisPresence(t *testing.T) (*RedisPresence, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPresence(client, ""), srv
}

func TestRedisPresenceHeartbeatAndRoster(t *testing.T) {
	p, _ := newRedisPresence(t)
	ctx := context.Background()

	if err := p.Heartbeat(ctx, "s1", "Bob", time.Minute); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if err := p.Heartbeat(ctx, "s1", "alice", time.Minute); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	// Another session does not leak into the roster.
	if err := p.Heartbeat(ctx, "s2", "carol", time.Minute); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	roster, err := p.Roster(ctx, "s1")
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 present, got %d", len(roster))
	}
	if roster[0].Operator != "alice" || roster[1].Operator != "Bob" {
		t.Errorf("expected case-insensitive order, got %v", roster)
	}
}

func TestRedisPresenceExpiry(t *testing.T) {
	p, srv := newRedisPresence(t)
	ctx := context.Background()

	if err := p.Heartbeat(ctx, "s1", "alice", 30*time.Second); err != nil {
		t.Fatal(err)
	}

	srv.FastForward(time.Minute)

	roster, err := p.Roster(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 0 {
		t.Errorf("expected expired operator dropped, got %v", roster)
	}
}

func TestRedisPresenceLeaveAndClear(t *testing.T) {
	p, _ := newRedisPresence(t)
	ctx := context.Background()

	for _, op := range []string{"alice", "bob"} {
		if err := p.Heartbeat(ctx, "s1", op, time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := p.Leave(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	roster, _ := p.Roster(ctx, "s1")
	if len(roster) != 1 || roster[0].Operator != "bob" {
		t.Errorf("expected only bob, got %v", roster)
	}

	if err := p.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	roster, _ = p.Roster(ctx, "s1")
	if len(roster) != 0 {
		t.Errorf("expected empty roster, got %v", roster)
	}

	// Clearing an already-empty session is a no-op.
	if err := p.Clear(ctx, "s1"); err != nil {
		t.Errorf("re-clear must not error: %v", err)
	}
}
