package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapStore is a minimal CounterStore for limiter tests.
type mapStore struct {
	mu       sync.Mutex
	counters map[string]Counter
	err      error
}

func newMapStore() *mapStore {
	return &mapStore{counters: make(map[string]Counter)}
}

func (s *mapStore) GetCounter(_ context.Context, token string) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.counters[token]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *mapStore) UpdateCounter(_ context.Context, token string, fn func(*Counter) (Counter, error)) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Counter{}, s.err
	}
	var cur *Counter
	if c, ok := s.counters[token]; ok {
		cur = &c
	}
	next, err := fn(cur)
	if err != nil {
		return Counter{}, err
	}
	s.counters[token] = next
	return next, nil
}

func (s *mapStore) DeleteCounter(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.counters, token)
	return nil
}

func TestLimiterRecordUntilLimited(t *testing.T) {
	ctx := context.Background()
	now := t0
	l := NewLimiter(Policy{Limit: 3, Window: time.Hour}, newMapStore()).WithClock(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		assert.True(t, l.MayJudge(ctx, "s"))
		c, err := l.Record(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, i, c.Count)
	}

	assert.False(t, l.MayJudge(ctx, "s"))
	_, err := l.Record(ctx, "s")
	assert.ErrorIs(t, err, ErrLimited)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	st, err := l.Status(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, Status{Used: 3, Remaining: 0, Limit: 3, ResetAt: t0.Add(time.Hour)}, st)

	// Other sessions are independent
	left, err := l.Remaining(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	now = t0.Add(time.Hour + time.Second)
	assert.True(t, l.MayJudge(ctx, "s"))
	left, err = l.Remaining(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}

func TestLimiterReset(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(Policy{Limit: 1, Window: time.Hour}, newMapStore())

	_, err := l.Record(ctx, "s")
	require.NoError(t, err)
	require.False(t, l.MayJudge(ctx, "s"))

	require.NoError(t, l.Reset(ctx, "s"))
	assert.True(t, l.MayJudge(ctx, "s"))
}

func TestLimiterFailsClosed(t *testing.T) {
	// Given a store that cannot be reached
	ctx := context.Background()
	store := newMapStore()
	store.err = errors.New("dial tcp: connection refused")
	l := NewLimiter(DefaultPolicy(), store)

	// Then every path refuses or reports unavailability
	assert.False(t, l.MayJudge(ctx, "s"))

	err := l.Check(ctx, "s")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrLimited)

	_, err = l.Record(ctx, "s")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = l.Remaining(ctx, "s")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.Error(t, l.Reset(ctx, "s"))
}
