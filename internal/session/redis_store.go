// Package session stores live admin sessions by token hash.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the value kept for each admin session.
type Record struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore keeps admin sessions as expiring Redis keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "folio:session:",
		now:    time.Now,
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// SaveSession stores the session until expiresAt. A session that is already
// expired is not stored.
func (s *RedisStore) SaveSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(Record{CreatedAt: now.UTC(), ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lookup returns the stored record, or ok=false when the session is gone.
func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup session: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return record, true, nil
}

// SessionActive reports whether the session is stored and unexpired.
func (s *RedisStore) SessionActive(ctx context.Context, tokenHash string) (bool, error) {
	_, ok, err := s.Lookup(ctx, tokenHash)
	return ok, err
}

// RevokeSession deletes the session; revoking an unknown session is not an error.
func (s *RedisStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
