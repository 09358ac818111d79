package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisReactionsAreIdempotent(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	added, err := store.InsertReaction(ctx, "post-1", "like", "client-a", now)
	if err != nil || !added {
		t.Fatalf("first insert: added=%v err=%v", added, err)
	}
	added, err = store.InsertReaction(ctx, "post-1", "like", "client-a", now)
	if err != nil || added {
		t.Fatalf("duplicate insert: added=%v err=%v", added, err)
	}
	if _, err := store.InsertReaction(ctx, "post-1", "like", "client-b", now); err != nil {
		t.Fatalf("insert second client: %v", err)
	}

	counts, err := store.ReactionCounts(ctx, "post-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["like"] != 2 {
		t.Fatalf("expected 2 likes, got %v", counts)
	}
	if !s.Exists("folio:reactions:post-1:like") {
		t.Fatal("expected per-kind set key")
	}
	if got := s.HGet("folio:reactions:post-1:counts", "like"); got != "2" {
		t.Fatalf("expected counts hash 2, got %q", got)
	}
}

func TestRedisDeleteReaction(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	removed, err := store.DeleteReaction(ctx, "post-1", "love", "client-a")
	if err != nil || removed {
		t.Fatalf("delete absent: removed=%v err=%v", removed, err)
	}

	if _, err := store.InsertReaction(ctx, "post-1", "love", "client-a", time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	removed, err = store.DeleteReaction(ctx, "post-1", "love", "client-a")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}

	counts, err := store.ReactionCounts(ctx, "post-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if _, ok := counts["love"]; ok {
		t.Fatalf("expected love to be gone, got %v", counts)
	}
	if got := s.HGet("folio:reactions:post-1:counts", "love"); got != "" {
		t.Fatalf("expected hash field removed, got %q", got)
	}
}

func TestRedisAllowReactionSlidingWindow(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, err := store.AllowReaction(ctx, "client", start.Add(time.Duration(i)*time.Second), time.Minute, 3)
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, err := store.AllowReaction(ctx, "client", start.Add(30*time.Second), time.Minute, 3)
	if err != nil || ok {
		t.Fatalf("expected rejection: ok=%v err=%v", ok, err)
	}
	members, err := s.ZMembers("folio:ratelimit:client")
	if err != nil {
		t.Fatalf("zmembers: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("rejected call must not be logged, got %d entries", len(members))
	}

	ok, err = store.AllowReaction(ctx, "client", start.Add(60*time.Second+time.Millisecond), time.Minute, 3)
	if err != nil || !ok {
		t.Fatalf("expected slot once the first entry leaves the window: ok=%v err=%v", ok, err)
	}

	ok, err = store.AllowReaction(ctx, "other", start, time.Minute, 3)
	if err != nil || !ok {
		t.Fatalf("other client must have its own budget: ok=%v err=%v", ok, err)
	}
}

func TestRedisStorePing(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
