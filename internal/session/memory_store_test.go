package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	if err := store.SaveSession(ctx, "hash-a", now.Add(time.Hour)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	active, err := store.SessionActive(ctx, "hash-a")
	if err != nil || !active {
		t.Fatalf("expected active session, got %v %v", active, err)
	}

	if err := store.RevokeSession(ctx, "hash-a"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if active, _ := store.SessionActive(ctx, "hash-a"); active {
		t.Fatal("revoked session must be inactive")
	}
	if err := store.RevokeSession(ctx, "unknown"); err != nil {
		t.Fatalf("revoking an unknown session should be a no-op, got %v", err)
	}
}

func TestMemoryStoreExpiryAndPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	_ = store.SaveSession(ctx, "short", now.Add(time.Minute))
	now = now.Add(2 * time.Minute)
	if active, _ := store.SessionActive(ctx, "short"); active {
		t.Fatal("expired session must be inactive")
	}

	_ = store.SaveSession(ctx, "fresh", now.Add(time.Hour))
	store.mu.Lock()
	_, kept := store.sessions["short"]
	store.mu.Unlock()
	if kept {
		t.Fatal("expired sessions should be pruned on save")
	}
}
