package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GuestRepository stores guest session counters and moves guest votes to accounts
type GuestRepository struct {
	db *pgxpool.Pool
}

// NewGuestRepository creates a new guest repository
func NewGuestRepository(db *pgxpool.Pool) *GuestRepository {
	return &GuestRepository{db: db}
}

var _ ratelimit.CounterStore = (*GuestRepository)(nil)

// GetCounter returns the counter of a session, or nil when it has none
func (r *GuestRepository) GetCounter(ctx context.Context, token string) (*ratelimit.Counter, error) {
	c := ratelimit.Counter{Token: token}
	err := r.db.QueryRow(ctx, `
		SELECT vote_count, window_start FROM guest_vote_limits WHERE session_id = $1
	`, token).Scan(&c.Count, &c.WindowStart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get guest counter: %w", err)
	}
	if c.Count == 0 {
		return nil, nil
	}
	return &c, nil
}

// UpdateCounter applies fn to the locked counter and stores the result
func (r *GuestRepository) UpdateCounter(ctx context.Context, token string, fn func(cur *ratelimit.Counter) (ratelimit.Counter, error)) (ratelimit.Counter, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return ratelimit.Counter{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	cur, err := lockCounter(ctx, tx, token, now)
	if err != nil {
		return ratelimit.Counter{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return ratelimit.Counter{}, err
	}
	if err := saveCounter(ctx, tx, next, now); err != nil {
		return ratelimit.Counter{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ratelimit.Counter{}, fmt.Errorf("failed to commit guest counter: %w", err)
	}
	return next, nil
}

// DeleteCounter removes a session counter
func (r *GuestRepository) DeleteCounter(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM guest_vote_limits WHERE session_id = $1`, token); err != nil {
		return fmt.Errorf("failed to delete guest counter: %w", err)
	}
	return nil
}

// PurgeExpired deletes counters whose window started before cutoff
func (r *GuestRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM guest_vote_limits WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, storageError("purge guest counters", err)
	}
	return result.RowsAffected(), nil
}

// ActiveSessions counts counters whose window started at or after cutoff
func (r *GuestRepository) ActiveSessions(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM guest_vote_limits WHERE window_start >= $1 AND vote_count > 0`, cutoff).Scan(&n)
	if err != nil {
		return 0, storageError("count guest sessions", err)
	}
	return n, nil
}

// MigrateGuestVotes moves a session's votes to a user's ledger. The session counter is left to ratelimit.Limiter.Reset.
// Pairs the user already judged are skipped. Ratings are not touched since they were applied
// when the guest voted. Returns the number of votes moved.
func (r *GuestRepository) MigrateGuestVotes(ctx context.Context, token string, userID int64) (int, error) {
	guest := ranking.GuestVoter(token)
	user := ranking.UserVoter(userID)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, storageError("begin guest migration", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO votes (voter_key, user_id, winner_id, loser_id, pair_low, pair_high, created_at)
		SELECT $2, $3, winner_id, loser_id, pair_low, pair_high, created_at
		FROM votes
		WHERE voter_key = $1
		ORDER BY id
		ON CONFLICT (voter_key, pair_low, pair_high) DO NOTHING
	`, guest.Key(), user.Key(), userID)
	if err != nil {
		return 0, storageError("copy guest votes", err)
	}
	migrated := int(result.RowsAffected())

	if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE voter_key = $1`, guest.Key()); err != nil {
		return 0, storageError("delete guest votes", err)
	}
	if migrated > 0 {
		if _, err := tx.Exec(ctx, `UPDATE users SET total_votes = total_votes + $2 WHERE id = $1`, userID, migrated); err != nil {
			return 0, storageError("update vote total", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storageError("commit guest migration", err)
	}
	return migrated, nil
}
