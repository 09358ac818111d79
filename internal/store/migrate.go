package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationName = regexp.MustCompile(`^(\d+)_[A-Za-z0-9_]+\.(up|down)\.sql$`)

// ErrNoMigrations is returned by RollbackMigration when nothing is applied.
var ErrNoMigrations = errors.New("no applied migrations")

// Migration is one numbered schema change with its up and down scripts.
type Migration struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// MigrationState pairs a migration with whether it has been applied.
type MigrationState struct {
	Migration
	Applied bool
}

// LoadMigrations reads the up/down pairs in dir, ordered by version. A
// version missing its up script is an error; a missing down script is not.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		m := byVersion[match[1]]
		if m == nil {
			m = &Migration{Version: match[1]}
			byVersion[match[1]] = m
		}
		path := filepath.Join(dir, entry.Name())
		if match[2] == "up" {
			m.Name = entry.Name()
			m.UpPath = path
		} else {
			m.DownPath = path
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		if m.UpPath == "" {
			return nil, fmt.Errorf("migration %s has no up script", version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplyMigrations runs every pending up script, each in its own
// transaction, and returns the names it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		err := runScript(ctx, db, m.UpPath, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("apply %s: %w", m.Name, err)
		}
		ran = append(ran, m.Name)
	}
	return ran, nil
}

// RollbackMigration runs the down script of the newest applied migration.
func RollbackMigration(ctx context.Context, db *sql.DB, dir string) (string, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return "", err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return "", err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return "", err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if !applied[m.Name] {
			continue
		}
		if m.DownPath == "" {
			return "", fmt.Errorf("migration %s has no down script", m.Name)
		}
		err := runScript(ctx, db, m.DownPath, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, m.Name)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("roll back %s: %w", m.Name, err)
		}
		return m.Name, nil
	}
	return "", ErrNoMigrations
}

// MigrationStatus reports every migration in dir and whether it is applied.
func MigrationStatus(ctx context.Context, db *sql.DB, dir string) ([]MigrationState, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, MigrationState{Migration: m, Applied: applied[m.Name]})
	}
	return out, nil
}

func runScript(ctx context.Context, db *sql.DB, path string, record func(*sql.Tx) error) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if script := strings.TrimSpace(string(contents)); script != "" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute: %w", err)
		}
	}
	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
