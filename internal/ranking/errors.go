// Package ranking implements the pairwise rating engine: the ELO update rule,
// pair sampling inside a category, and the judgment flow that ties the vote
// ledger, the rating store and the guest rate limiter together.
package ranking

import (
	"errors"

	"photorank-backend/internal/ratelimit"
)

// Pair selection errors
var (
	// ErrInsufficientItems means the category has fewer than two photos.
	ErrInsufficientItems = errors.New("not enough photos in category")
	// ErrPairsExhausted means the voter has judged every pair in the category.
	ErrPairsExhausted = errors.New("no more photo pairs to vote on in this category")
)

// Judgment errors
var (
	// ErrNoVoter is returned when a judgment carries neither a user nor a guest session.
	ErrNoVoter = errors.New("voter identity required")
	// ErrSameItem is returned when winner and loser are the same photo.
	ErrSameItem = errors.New("cannot vote for same photo")
	// ErrDuplicateJudgment is returned when the voter already judged this pair, in either order.
	ErrDuplicateJudgment = errors.New("already voted on this pair")
	// ErrItemNotFound is returned when winner or loser does not exist.
	ErrItemNotFound = errors.New("photo not found")
	// ErrPartitionMismatch is returned when winner and loser belong to different categories.
	ErrPartitionMismatch = errors.New("photos belong to different categories")
	// ErrRateLimited is matched by *ratelimit.LimitError, which carries count, limit and reset time.
	ErrRateLimited = ratelimit.ErrLimited
)

// ErrStorageUnavailable wraps persistence failures. No partial mutation is visible when it is returned.
var ErrStorageUnavailable = errors.New("storage unavailable")
