package reactions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestService(c *clock) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, Options{Now: c.Now}), store
}

func TestNormalizeKind(t *testing.T) {
	cases := map[string]string{
		"like":       "like",
		"LIKE":       "like",
		"👍":          "like",
		"💡":          "insightful",
		"❤️":         "love",
		"❤":          "love",
		" love ":     "love",
		"insightful": "insightful",
	}
	for input, want := range cases {
		got, ok := NormalizeKind(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := NormalizeKind("🎉")
	assert.False(t, ok)
	_, ok = NormalizeKind("")
	assert.False(t, ok)
}

func TestKindsReturnsCopy(t *testing.T) {
	list := Kinds()
	require.Len(t, list, 3)
	list[0].Name = "changed"
	assert.Equal(t, "like", Kinds()[0].Name)
}

func TestNewClientIDIsUnique(t *testing.T) {
	a, b := NewClientID(), NewClientID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(newClock())

	res, err := svc.Add(ctx, "post-1", "like", "client-a")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, map[string]int{"like": 1, "insightful": 0, "love": 0}, res.Counts)

	res, err = svc.Add(ctx, "post-1", "👍", "client-a")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, res.Counts["like"])

	_, err = svc.Add(ctx, "post-1", "like", "client-b")
	require.NoError(t, err)
	counts, err := svc.Counts(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts["like"])
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(newClock())

	res, err := svc.Remove(ctx, "post-1", "love", "client-a")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 0, res.Counts["love"])

	_, err = svc.Add(ctx, "post-1", "love", "client-a")
	require.NoError(t, err)
	res, err = svc.Remove(ctx, "post-1", "love", "client-a")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 0, res.Counts["love"])
}

func TestCountsAreScopedToDocument(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(newClock())

	_, err := svc.Add(ctx, "post-1", "insightful", "client-a")
	require.NoError(t, err)
	counts, err := svc.Counts(ctx, "post-2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"like": 0, "insightful": 0, "love": 0}, counts)
}

func TestRateLimitSlidingWindow(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	svc, _ := newTestService(c)

	for i := 0; i < DefaultLimit; i++ {
		_, err := svc.Add(ctx, "post-1", "like", "client-a")
		require.NoError(t, err, "call %d", i)
		c.Advance(time.Second)
	}

	_, err := svc.Add(ctx, "post-1", "love", "client-a")
	assert.ErrorIs(t, err, ErrRateLimited)
	counts, err := svc.Counts(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts["love"])

	_, err = svc.Add(ctx, "post-1", "like", "client-b")
	assert.NoError(t, err, "other clients keep their own budget")

	// The first call was at t0; advancing past t0+window frees one slot.
	c.now = time.Date(2024, 3, 1, 12, 1, 0, 1, time.UTC)
	_, err = svc.Add(ctx, "post-1", "love", "client-a")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "post-1", "love", "client-a")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRejectedCallsDoNotConsumeBudget(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	svc := NewService(NewMemoryStore(), Options{Now: c.Now, Limit: 2, Window: 10 * time.Second})

	for i := 0; i < 2; i++ {
		_, err := svc.Add(ctx, "post", "like", "client")
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := svc.Remove(ctx, "post", "like", "client")
		assert.ErrorIs(t, err, ErrRateLimited)
	}
	c.Advance(11 * time.Second)
	_, err := svc.Remove(ctx, "post", "like", "client")
	assert.NoError(t, err)
}

func TestMemoryStoreForgetsIdleClients(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	svc, store := newTestService(c)

	for i := 0; i < 50; i++ {
		_, err := svc.Add(ctx, "post", "like", fmt.Sprintf("client-%d", i))
		require.NoError(t, err)
	}
	assert.Len(t, store.logs, 50)

	c.Advance(DefaultWindow + time.Second)
	_, err := svc.Add(ctx, "post", "love", "latecomer")
	require.NoError(t, err)
	assert.Len(t, store.logs, 1, "clients with no entries inside the window are dropped")
	assert.Contains(t, store.logs, "latecomer")
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(newClock())

	tests := []struct {
		name, doc, kind, client string
	}{
		{"empty document", "", "like", "client"},
		{"long document", string(make([]byte, maxDocumentIDLength+1)), "like", "client"},
		{"empty client", "post", "like", " "},
		{"client with space", "post", "like", "a b"},
		{"unknown kind", "post", "party", "client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tt.doc, tt.kind, tt.client)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
	assert.Empty(t, store.logs, "invalid calls are not rate-limit logged")
}

type failingStore struct{ *MemoryStore }

func (failingStore) AllowReaction(context.Context, string, time.Time, time.Duration, int) (bool, error) {
	return false, errors.New("boom")
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	svc := NewService(failingStore{NewMemoryStore()}, Options{})
	_, err := svc.Add(context.Background(), "post", "like", "client")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "check rate limit")
}
