package reactions

import (
	"context"
	"sync"
	"time"
)

type recordKey struct {
	documentID string
	kind       string
	clientID   string
}

// MemoryStore keeps reactions in process memory. It suits tests and single
// instance deployments that can lose counts on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]time.Time
	logs    map[string][]time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]time.Time),
		logs:    make(map[string][]time.Time),
	}
}

func (m *MemoryStore) ReactionCounts(_ context.Context, documentID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for key := range m.records {
		if key.documentID == documentID {
			counts[key.kind]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) InsertReaction(_ context.Context, documentID, kind, clientID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{documentID: documentID, kind: kind, clientID: clientID}
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = at
	return true, nil
}

func (m *MemoryStore) DeleteReaction(_ context.Context, documentID, kind, clientID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{documentID: documentID, kind: kind, clientID: clientID}
	if _, ok := m.records[key]; !ok {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

func (m *MemoryStore) AllowReaction(_ context.Context, clientID string, now time.Time, window time.Duration, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	m.pruneIdle(cutoff)
	kept := m.logs[clientID][:0]
	for _, at := range m.logs[clientID] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= limit {
		if len(kept) == 0 {
			delete(m.logs, clientID)
		} else {
			m.logs[clientID] = kept
		}
		return false, nil
	}
	m.logs[clientID] = append(kept, now)
	return true, nil
}

// pruneIdle drops clients whose newest entry is at or before cutoff.
// Entries are appended in call order, so the last one is the newest.
func (m *MemoryStore) pruneIdle(cutoff time.Time) {
	for clientID, log := range m.logs {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(m.logs, clientID)
		}
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }
