// Package ratelimit caps how many votes an anonymous guest session may cast
// inside a fixed window.
package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultLimit is the number of votes a guest session may cast per window.
	DefaultLimit = 10
	// DefaultWindow is how long a guest window lasts after its first vote.
	DefaultWindow = 24 * time.Hour
)

var (
	// ErrLimited is matched by every *LimitError.
	ErrLimited = errors.New("guest vote limit reached")
	// ErrStoreUnavailable wraps counter store failures. The limiter refuses votes when it sees one.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// Counter is the per-session vote counter.
type Counter struct {
	Token       string    `json:"session_id"`
	Count       int       `json:"vote_count"`
	WindowStart time.Time `json:"window_start"`
}

// LimitError reports a rejected guest vote.
type LimitError struct {
	Count   int
	Limit   int
	ResetAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("guest vote limit reached (%d/%d), resets %s",
		e.Count, e.Limit, humanize.Time(e.ResetAt))
}

// Is makes errors.Is(err, ErrLimited) true for any *LimitError.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimited
}

// Policy is a fixed-window quota. A window opens with the first vote and lasts Window;
// a counter whose window started exactly Window ago is still inside it.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy returns 10 votes per 24 hours.
func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

// Expired reports whether c no longer counts. A nil counter is treated as expired.
func (p Policy) Expired(c *Counter, now time.Time) bool {
	return c == nil || now.Sub(c.WindowStart) > p.Window
}

// Used returns the effective number of votes cast in the current window.
func (p Policy) Used(c *Counter, now time.Time) int {
	if p.Expired(c, now) {
		return 0
	}
	return c.Count
}

// Remaining returns how many votes are left in the current window.
func (p Policy) Remaining(c *Counter, now time.Time) int {
	left := p.Limit - p.Used(c, now)
	if left < 0 {
		return 0
	}
	return left
}

// ResetAt returns when the current window ends. With no live window a new one would start now.
func (p Policy) ResetAt(c *Counter, now time.Time) time.Time {
	if p.Expired(c, now) {
		return now.Add(p.Window)
	}
	return c.WindowStart.Add(p.Window)
}

// Check returns a *LimitError when no vote is left in the window.
func (p Policy) Check(c *Counter, now time.Time) error {
	used := p.Used(c, now)
	if used >= p.Limit {
		return &LimitError{Count: used, Limit: p.Limit, ResetAt: p.ResetAt(c, now)}
	}
	return nil
}

// Admit returns the counter after one more vote, or a *LimitError.
// An expired counter is re-baselined to Count=1 at now instead of being incremented.
func (p Policy) Admit(c *Counter, token string, now time.Time) (Counter, error) {
	if err := p.Check(c, now); err != nil {
		return Counter{}, err
	}
	if p.Expired(c, now) {
		return Counter{Token: token, Count: 1, WindowStart: now}, nil
	}
	next := *c
	next.Token = token
	next.Count++
	return next, nil
}
