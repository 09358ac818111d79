package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory for single-node setups
// without Redis or Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryStore) SaveSession(_ context.Context, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.sessions[tokenHash] = expiresAt
	return nil
}

func (s *MemoryStore) SessionActive(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.sessions[tokenHash]
	return ok && s.now().Before(expiresAt), nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) prune() {
	now := s.now()
	for hash, expiresAt := range s.sessions {
		if !now.Before(expiresAt) {
			delete(s.sessions, hash)
		}
	}
}
