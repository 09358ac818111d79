package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	if _, err := NewRedisStore("redis://" + addr); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestSaveAndLookupSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	if err := store.SaveSession(ctx, "hash-1", expiresAt); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	record, ok, err := store.Lookup(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
	}
	if record.ExpiresAt.Unix() != expiresAt.Unix() {
		t.Errorf("expected expiry %v, got %v", expiresAt, record.ExpiresAt)
	}

	if !s.Exists("folio:session:hash-1") {
		t.Error("expected prefixed session key")
	}
	if ttl := s.TTL("folio:session:hash-1"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("unexpected ttl %v", ttl)
	}
}

func TestSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveSession(ctx, "short", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	active, err := store.SessionActive(ctx, "short")
	if err != nil {
		t.Fatalf("SessionActive failed: %v", err)
	}
	if active {
		t.Error("expected expired session to be inactive")
	}
}

func TestSaveAlreadyExpiredSessionIsNoop(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	if err := store.SaveSession(context.Background(), "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if s.Exists("folio:session:old") {
		t.Error("expired session must not be stored")
	}
}

func TestRevokeSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)
	for _, hash := range []string{"hash-1", "hash-2"} {
		if err := store.SaveSession(ctx, hash, expiresAt); err != nil {
			t.Fatalf("SaveSession %s failed: %v", hash, err)
		}
	}

	if err := store.RevokeSession(ctx, "hash-1"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if active, _ := store.SessionActive(ctx, "hash-1"); active {
		t.Error("expected revoked session to be inactive")
	}
	if active, _ := store.SessionActive(ctx, "hash-2"); !active {
		t.Error("expected other session to stay active")
	}

	if err := store.RevokeSession(ctx, "missing"); err != nil {
		t.Errorf("revoking unknown session failed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.SaveSession(ctx, "hash", now.Add(time.Minute)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if active, _ := store.SessionActive(ctx, "hash"); !active {
		t.Fatal("expected active session")
	}

	now = now.Add(2 * time.Minute)
	if active, _ := store.SessionActive(ctx, "hash"); active {
		t.Fatal("expected expired session")
	}

	now = now.Add(-2 * time.Minute)
	if err := store.RevokeSession(ctx, "hash"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if active, _ := store.SessionActive(ctx, "hash"); active {
		t.Fatal("expected revoked session")
	}
}
