package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// CounterStore persists guest counters.
type CounterStore interface {
	// GetCounter returns the counter for token, or nil when there is none.
	GetCounter(ctx context.Context, token string) (*Counter, error)
	// UpdateCounter atomically reads the counter (nil when absent), applies fn and stores the result.
	// Nothing is written when fn returns an error.
	UpdateCounter(ctx context.Context, token string, fn func(cur *Counter) (Counter, error)) (Counter, error)
	// DeleteCounter removes the counter for token.
	DeleteCounter(ctx context.Context, token string) error
}

// Status is a snapshot of a session's quota.
type Status struct {
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter applies a Policy to counters kept in a CounterStore.
// Store failures are fail-closed: the session is refused rather than left untracked.
type Limiter struct {
	policy Policy
	store  CounterStore
	now    func() time.Time
}

// NewLimiter creates a limiter.
func NewLimiter(policy Policy, store CounterStore) *Limiter {
	return &Limiter{policy: policy, store: store, now: time.Now}
}

// WithClock replaces the limiter's time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Check returns nil when token may cast another vote, a *LimitError when the quota is spent,
// and an error wrapping ErrStoreUnavailable when the store cannot be read.
func (l *Limiter) Check(ctx context.Context, token string) error {
	c, err := l.store.GetCounter(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return l.policy.Check(c, l.now())
}

// MayJudge reports whether token may cast another vote.
func (l *Limiter) MayJudge(ctx context.Context, token string) bool {
	err := l.Check(ctx, token)
	if err != nil && !isLimited(err) {
		log.Warn().Err(err).Str("session_id", token).Msg("Guest counter unavailable, refusing vote")
	}
	return err == nil
}

// Record counts one vote for token.
func (l *Limiter) Record(ctx context.Context, token string) (Counter, error) {
	now := l.now()
	c, err := l.store.UpdateCounter(ctx, token, func(cur *Counter) (Counter, error) {
		return l.policy.Admit(cur, token, now)
	})
	if err != nil {
		if isLimited(err) {
			return Counter{}, err
		}
		return Counter{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return c, nil
}

// Remaining returns how many votes token has left.
func (l *Limiter) Remaining(ctx context.Context, token string) (int, error) {
	s, err := l.Status(ctx, token)
	if err != nil {
		return 0, err
	}
	return s.Remaining, nil
}

// Status returns the quota snapshot for token.
func (l *Limiter) Status(ctx context.Context, token string) (Status, error) {
	c, err := l.store.GetCounter(ctx, token)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	now := l.now()
	return Status{
		Used:      l.policy.Used(c, now),
		Remaining: l.policy.Remaining(c, now),
		Limit:     l.policy.Limit,
		ResetAt:   l.policy.ResetAt(c, now),
	}, nil
}

// Reset drops the counter for token.
func (l *Limiter) Reset(ctx context.Context, token string) error {
	if err := l.store.DeleteCounter(ctx, token); err != nil {
		return fmt.Errorf("failed to reset guest counter: %w", err)
	}
	return nil
}

func isLimited(err error) bool {
	return errors.Is(err, ErrLimited)
}
