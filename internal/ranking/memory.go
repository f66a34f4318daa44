package ranking

import (
	"context"
	"sort"
	"sync"
	"time"

	"photorank-backend/internal/ratelimit"
)

// MemoryStore keeps photos, the vote ledger and guest counters in process memory.
// It implements both Store and ratelimit.CounterStore behind a single lock,
// so a guest admit and the vote it pays for are applied together.
// The server always runs on Postgres; this store backs the engine, limiter and
// handler tests and serves as the reference for the Store contract.
type MemoryStore struct {
	mu          sync.Mutex
	items       map[int64]*Item
	ledger      []Judgment
	judged      map[string]PairSet
	counters    map[string]ratelimit.Counter
	voterTotals map[int64]int
	nextID      int64

	window   time.Duration
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryStore creates an empty store. Guest counters older than window are
// dropped by a background sweep until Close is called.
func NewMemoryStore(window time.Duration) *MemoryStore {
	s := &MemoryStore{
		items:       make(map[int64]*Item),
		judged:      make(map[string]PairSet),
		counters:    make(map[string]ratelimit.Counter),
		voterTotals: make(map[int64]int),
		window:      window,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Close stops the background sweep.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// AddItem inserts a photo. A zero rating starts at BaselineRating.
func (s *MemoryStore) AddItem(it Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.Rating == 0 {
		it.Rating = BaselineRating
	}
	s.items[it.ID] = &it
}

// Item returns a copy of the photo with id.
func (s *MemoryStore) Item(id int64) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Ledger returns a copy of every recorded judgment in insertion order.
func (s *MemoryStore) Ledger() []Judgment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Judgment, len(s.ledger))
	copy(out, s.ledger)
	return out
}

// VoterTotal returns the lifetime vote counter of a user.
func (s *MemoryStore) VoterTotal(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voterTotals[userID]
}

func (s *MemoryStore) PartitionItems(_ context.Context, partitionID int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.items {
		if it.PartitionID == partitionID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) JudgedPairs(_ context.Context, voter Voter, partitionID int64) (PairSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := NewPairSet()
	for k := range s.judged[voter.Key()] {
		lo, hi := s.items[k.Low], s.items[k.High]
		if lo != nil && hi != nil && lo.PartitionID == partitionID && hi.PartitionID == partitionID {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (s *MemoryStore) HasJudged(_ context.Context, voter Voter, pair PairKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.judged[voter.Key()].Has(pair.Low, pair.High), nil
}

func (s *MemoryStore) RecordJudgment(_ context.Context, j Judgment, quota *ratelimit.Policy) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	winner, ok := s.items[j.WinnerID]
	if !ok {
		return nil, ErrItemNotFound
	}
	loser, ok := s.items[j.LoserID]
	if !ok {
		return nil, ErrItemNotFound
	}
	if winner.PartitionID != loser.PartitionID {
		return nil, ErrPartitionMismatch
	}

	key := j.Voter.Key()
	if s.judged[key].Has(j.WinnerID, j.LoserID) {
		return nil, ErrDuplicateJudgment
	}

	remaining := Unlimited
	if quota != nil && j.Voter.Anonymous() {
		var cur *ratelimit.Counter
		if c, ok := s.counters[j.Voter.SessionToken]; ok {
			cur = &c
		}
		next, err := quota.Admit(cur, j.Voter.SessionToken, j.CreatedAt)
		if err != nil {
			return nil, err
		}
		s.counters[j.Voter.SessionToken] = next
		remaining = quota.Remaining(&next, j.CreatedAt)
	}

	wd, ld := EloChange(winner.Rating, loser.Rating)
	winner.Rating += wd
	winner.Comparisons++
	winner.Wins++
	loser.Rating += ld
	loser.Comparisons++

	s.nextID++
	j.ID = s.nextID
	s.ledger = append(s.ledger, j)
	if s.judged[key] == nil {
		s.judged[key] = NewPairSet()
	}
	s.judged[key].Add(j.WinnerID, j.LoserID)

	return &Outcome{
		Judgment:    j,
		Winner:      *winner,
		Loser:       *loser,
		WinnerDelta: wd,
		LoserDelta:  ld,
		Remaining:   remaining,
	}, nil
}

func (s *MemoryStore) IncrementVoterTotal(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voterTotals[userID]++
	return nil
}

func (s *MemoryStore) GetCounter(_ context.Context, token string) (*ratelimit.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[token]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) UpdateCounter(_ context.Context, token string, fn func(cur *ratelimit.Counter) (ratelimit.Counter, error)) (ratelimit.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *ratelimit.Counter
	if c, ok := s.counters[token]; ok {
		cur = &c
	}
	next, err := fn(cur)
	if err != nil {
		return ratelimit.Counter{}, err
	}
	s.counters[token] = next
	return next, nil
}

func (s *MemoryStore) DeleteCounter(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, token)
	return nil
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

func (s *MemoryStore) purgeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.window)
	for token, c := range s.counters {
		if c.WindowStart.Before(cutoff) {
			delete(s.counters, token)
		}
	}
}
