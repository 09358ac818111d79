package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"folio/api/internal/reactions"
)

// PostgresStore keeps reactions, the reaction rate-limit log and admin
// sessions in Postgres.
type PostgresStore struct {
	db *sql.DB
}

var _ reactions.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ReactionCounts(ctx context.Context, documentID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM reactions
		WHERE document_id = $1
		GROUP BY kind
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("count reactions: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan reaction count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) InsertReaction(ctx context.Context, documentID, kind, clientID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (document_id, kind, client_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, kind, client_id) DO NOTHING
	`, documentID, kind, clientID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("insert reaction: %w", err)
	}
	return affected(result)
}

func (s *PostgresStore) DeleteReaction(ctx context.Context, documentID, kind, clientID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE document_id = $1 AND kind = $2 AND client_id = $3
	`, documentID, kind, clientID)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	return affected(result)
}

// AllowReaction serialises concurrent calls for one client with a
// transaction-scoped advisory lock, so the count and the insert agree.
func (s *PostgresStore) AllowReaction(ctx context.Context, clientID string, now time.Time, window time.Duration, limit int) (allowed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, clientID); err != nil {
		return false, fmt.Errorf("lock client log: %w", err)
	}

	cutoff := now.Add(-window).UTC()
	if _, err = tx.ExecContext(ctx, `DELETE FROM reaction_logs WHERE client_id = $1 AND created_at <= $2`, clientID, cutoff); err != nil {
		return false, fmt.Errorf("prune client log: %w", err)
	}

	var recent int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reaction_logs WHERE client_id = $1 AND created_at > $2`, clientID, cutoff).Scan(&recent); err != nil {
		return false, fmt.Errorf("count client log: %w", err)
	}

	if recent < limit {
		if _, err = tx.ExecContext(ctx, `INSERT INTO reaction_logs (client_id, created_at) VALUES ($1, $2)`, clientID, now.UTC()); err != nil {
			return false, fmt.Errorf("append client log: %w", err)
		}
		allowed = true
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rate limit tx: %w", err)
	}
	return allowed, nil
}

// SaveSession records an admin session by token hash.
func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (token_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at, revoked_at = NULL
	`, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SessionActive reports whether the session exists, is not revoked and has
// not expired.
func (s *PostgresStore) SessionActive(ctx context.Context, tokenHash string) (bool, error) {
	var expiresAt time.Time
	var revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT expires_at, revoked_at FROM admin_sessions WHERE token_hash = $1
	`, tokenHash).Scan(&expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return !revokedAt.Valid && time.Now().Before(expiresAt), nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE admin_sessions SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PruneSessions deletes sessions that expired before cutoff.
func (s *PostgresStore) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return result.RowsAffected()
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
