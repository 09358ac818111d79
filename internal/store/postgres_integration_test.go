package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("FOLIO_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("FOLIO_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn, PoolOptions{})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	for range migrations {
		if _, err := RollbackMigration(ctx, db, migrationsDir); err != nil {
			t.Fatalf("roll back: %v", err)
		}
	}
	if _, err := RollbackMigration(ctx, db, migrationsDir); !errors.Is(err, ErrNoMigrations) {
		t.Fatalf("expected ErrNoMigrations, got %v", err)
	}

	ran, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	if len(ran) != len(migrations) {
		t.Fatalf("expected %d migrations applied, got %v", len(migrations), ran)
	}

	status, err := MigrationStatus(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, s := range status {
		if !s.Applied {
			t.Fatalf("expected %s applied", s.Name)
		}
	}
}

func TestPostgresReactions(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
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
	if _, err := store.InsertReaction(ctx, "post-1", "love", "client-b", now); err != nil {
		t.Fatalf("insert love: %v", err)
	}

	counts, err := store.ReactionCounts(ctx, "post-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["like"] != 1 || counts["love"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	removed, err := store.DeleteReaction(ctx, "post-1", "like", "client-a")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.DeleteReaction(ctx, "post-1", "like", "client-a")
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}

func TestPostgresAllowReactionSlidingWindow(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, err := store.AllowReaction(ctx, "client", start.Add(time.Duration(i)*time.Second), time.Minute, 3)
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := store.AllowReaction(ctx, "client", start.Add(10*time.Second), time.Minute, 3)
	if err != nil || ok {
		t.Fatalf("expected rejection: ok=%v err=%v", ok, err)
	}
	ok, err = store.AllowReaction(ctx, "client", start.Add(61*time.Second), time.Minute, 3)
	if err != nil || !ok {
		t.Fatalf("expected slot after window: ok=%v err=%v", ok, err)
	}
}

func TestPostgresSessions(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	ctx := context.Background()

	if err := store.SaveSession(ctx, "hash-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	active, err := store.SessionActive(ctx, "hash-1")
	if err != nil || !active {
		t.Fatalf("expected active session: %v %v", active, err)
	}
	if err := store.RevokeSession(ctx, "hash-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if active, _ := store.SessionActive(ctx, "hash-1"); active {
		t.Fatal("expected revoked session to be inactive")
	}

	if err := store.SaveSession(ctx, "hash-2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	if active, _ := store.SessionActive(ctx, "hash-2"); active {
		t.Fatal("expected expired session to be inactive")
	}
	n, err := store.PruneSessions(ctx, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
}
