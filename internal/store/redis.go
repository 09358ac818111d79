package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"folio/api/internal/reactions"
)

const defaultRedisPrefix = "folio:"

// addReaction adds the client to the per-kind set and bumps the count hash
// only when the member was new.
var addReaction = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
  redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
  return 1
end
return 0
`)

var removeReaction = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 1 then
  local n = redis.call('HINCRBY', KEYS[2], ARGV[2], -1)
  if n <= 0 then
    redis.call('HDEL', KEYS[2], ARGV[2])
  end
  return 1
end
return 0
`)

// allowReaction keeps one sorted set per client scored by unix millis.
// ARGV: now, cutoff, limit, member, ttl millis.
var allowReaction = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisStore keeps reactions in Redis sets with a count hash per document
// and a sorted-set log per client for rate limiting.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ reactions.Store = (*RedisStore)(nil)

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

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix}
}

func (s *RedisStore) setKey(documentID, kind string) string {
	return s.prefix + "reactions:" + documentID + ":" + kind
}

func (s *RedisStore) countsKey(documentID string) string {
	return s.prefix + "reactions:" + documentID + ":counts"
}

func (s *RedisStore) logKey(clientID string) string {
	return s.prefix + "ratelimit:" + clientID
}

func (s *RedisStore) ReactionCounts(ctx context.Context, documentID string) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, s.countsKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load reaction counts: %w", err)
	}
	counts := make(map[string]int, len(raw))
	for kind, value := range raw {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("parse count for %s: %w", kind, err)
		}
		if n > 0 {
			counts[kind] = n
		}
	}
	return counts, nil
}

func (s *RedisStore) InsertReaction(ctx context.Context, documentID, kind, clientID string, _ time.Time) (bool, error) {
	keys := []string{s.setKey(documentID, kind), s.countsKey(documentID)}
	n, err := addReaction.Run(ctx, s.client, keys, clientID, kind).Int()
	if err != nil {
		return false, fmt.Errorf("insert reaction: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) DeleteReaction(ctx context.Context, documentID, kind, clientID string) (bool, error) {
	keys := []string{s.setKey(documentID, kind), s.countsKey(documentID)}
	n, err := removeReaction.Run(ctx, s.client, keys, clientID, kind).Int()
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) AllowReaction(ctx context.Context, clientID string, now time.Time, window time.Duration, limit int) (bool, error) {
	nowMillis := now.UnixMilli()
	cutoff := now.Add(-window).UnixMilli()
	member := strconv.FormatInt(nowMillis, 10) + "-" + uuid.NewString()
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	n, err := allowReaction.Run(ctx, s.client, []string{s.logKey(clientID)},
		nowMillis, cutoff, limit, member, ttl).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check rate limit: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
