package repository

import (
	"context"
	"fmt"
	"time"

	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JudgmentRepository is the Postgres rating store and vote ledger
type JudgmentRepository struct {
	db *pgxpool.Pool
}

// NewJudgmentRepository creates a new judgment repository
func NewJudgmentRepository(db *pgxpool.Pool) *JudgmentRepository {
	return &JudgmentRepository{db: db}
}

var _ ranking.Store = (*JudgmentRepository)(nil)

// PartitionItems returns the photos of a category ordered by ID
func (r *JudgmentRepository) PartitionItems(ctx context.Context, categoryID int64) ([]ranking.Item, error) {
	query := `
		SELECT id, category_id, owner_id, filename, elo_rating, total_duels, wins
		FROM photos
		WHERE category_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, categoryID)
	if err != nil {
		return nil, storageError("get category photos", err)
	}
	defer rows.Close()

	var items []ranking.Item
	for rows.Next() {
		var it ranking.Item
		if err := rows.Scan(&it.ID, &it.PartitionID, &it.OwnerID, &it.Filename, &it.Rating, &it.Comparisons, &it.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate photos", err)
	}
	return items, nil
}

// JudgedPairs returns the voter's judged pairs inside a category
func (r *JudgmentRepository) JudgedPairs(ctx context.Context, voter ranking.Voter, categoryID int64) (ranking.PairSet, error) {
	query := `
		SELECT v.pair_low, v.pair_high
		FROM votes v
		JOIN photos p ON p.id = v.winner_id
		WHERE v.voter_key = $1 AND p.category_id = $2
	`
	rows, err := r.db.Query(ctx, query, voter.Key(), categoryID)
	if err != nil {
		return nil, storageError("get judged pairs", err)
	}
	defer rows.Close()

	judged := ranking.NewPairSet()
	for rows.Next() {
		var k ranking.PairKey
		if err := rows.Scan(&k.Low, &k.High); err != nil {
			return nil, fmt.Errorf("failed to scan judged pair: %w", err)
		}
		judged[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate judged pairs", err)
	}
	return judged, nil
}

// HasJudged reports whether the voter already has a ledger row for the pair
func (r *JudgmentRepository) HasJudged(ctx context.Context, voter ranking.Voter, pair ranking.PairKey) (bool, error) {
	return hasJudged(ctx, r.db, voter.Key(), pair)
}

// RecordJudgment applies a vote in one transaction. Both photo rows are locked in ID order,
// an existing ledger row for the pair is rejected before the guest counter (when quota is set)
// is admitted under a row lock, and the ledger's unique index on (voter_key, pair_low, pair_high)
// still rejects a racing duplicate.
func (r *JudgmentRepository) RecordJudgment(ctx context.Context, j ranking.Judgment, quota *ratelimit.Policy) (*ranking.Outcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storageError("begin judgment", err)
	}
	defer tx.Rollback(ctx)

	winner, loser, err := lockPair(ctx, tx, j.WinnerID, j.LoserID)
	if err != nil {
		return nil, err
	}
	if winner.PartitionID != loser.PartitionID {
		return nil, ranking.ErrPartitionMismatch
	}

	pair := j.Pair()
	judged, err := hasJudged(ctx, tx, j.Voter.Key(), pair)
	if err != nil {
		return nil, err
	}
	if judged {
		return nil, ranking.ErrDuplicateJudgment
	}

	remaining := ranking.Unlimited
	if quota != nil && j.Voter.Anonymous() {
		c, err := admitGuest(ctx, tx, *quota, j.Voter.SessionToken, j.CreatedAt)
		if err != nil {
			return nil, err
		}
		remaining = quota.Remaining(&c, j.CreatedAt)
	}

	var userID *int64
	if !j.Voter.Anonymous() {
		userID = &j.Voter.UserID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO votes (voter_key, user_id, winner_id, loser_id, pair_low, pair_high, ip_hash, ua_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING id
	`, j.Voter.Key(), userID, j.WinnerID, j.LoserID, pair.Low, pair.High, j.IPHash, j.UserAgentHash, j.CreatedAt).Scan(&j.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ranking.ErrDuplicateJudgment
		}
		return nil, storageError("insert vote", err)
	}

	wd, ld := ranking.EloChange(winner.Rating, loser.Rating)
	winner.Rating += wd
	winner.Comparisons++
	winner.Wins++
	loser.Rating += ld
	loser.Comparisons++

	update := `UPDATE photos SET elo_rating = $1, total_duels = $2, wins = $3 WHERE id = $4`
	if _, err := tx.Exec(ctx, update, winner.Rating, winner.Comparisons, winner.Wins, winner.ID); err != nil {
		return nil, storageError("update winner", err)
	}
	if _, err := tx.Exec(ctx, update, loser.Rating, loser.Comparisons, loser.Wins, loser.ID); err != nil {
		return nil, storageError("update loser", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ranking.ErrDuplicateJudgment
		}
		return nil, storageError("commit judgment", err)
	}

	return &ranking.Outcome{
		Judgment:    j,
		Winner:      winner,
		Loser:       loser,
		WinnerDelta: wd,
		LoserDelta:  ld,
		Remaining:   remaining,
	}, nil
}

// IncrementVoterTotal bumps users.total_votes
func (r *JudgmentRepository) IncrementVoterTotal(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET total_votes = total_votes + 1 WHERE id = $1`, userID)
	if err != nil {
		return storageError("increment vote total", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func hasJudged(ctx context.Context, q rowQuerier, voterKey string, pair ranking.PairKey) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM votes WHERE voter_key = $1 AND pair_low = $2 AND pair_high = $3)
	`, voterKey, pair.Low, pair.High).Scan(&exists)
	if err != nil {
		return false, storageError("check judged pair", err)
	}
	return exists, nil
}

// lockPair locks both photo rows in ascending ID order
func lockPair(ctx context.Context, tx pgx.Tx, winnerID, loserID int64) (ranking.Item, ranking.Item, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, category_id, owner_id, filename, elo_rating, total_duels, wins
		FROM photos
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, []int64{winnerID, loserID})
	if err != nil {
		return ranking.Item{}, ranking.Item{}, storageError("lock photos", err)
	}
	defer rows.Close()

	found := make(map[int64]ranking.Item, 2)
	for rows.Next() {
		var it ranking.Item
		if err := rows.Scan(&it.ID, &it.PartitionID, &it.OwnerID, &it.Filename, &it.Rating, &it.Comparisons, &it.Wins); err != nil {
			return ranking.Item{}, ranking.Item{}, fmt.Errorf("failed to scan photo: %w", err)
		}
		found[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return ranking.Item{}, ranking.Item{}, storageError("lock photos", err)
	}

	winner, ok := found[winnerID]
	if !ok {
		return ranking.Item{}, ranking.Item{}, ranking.ErrItemNotFound
	}
	loser, ok := found[loserID]
	if !ok {
		return ranking.Item{}, ranking.Item{}, ranking.ErrItemNotFound
	}
	return winner, loser, nil
}

// admitGuest counts one vote against the session inside tx
func admitGuest(ctx context.Context, tx pgx.Tx, policy ratelimit.Policy, token string, now time.Time) (ratelimit.Counter, error) {
	cur, err := lockCounter(ctx, tx, token, now)
	if err != nil {
		return ratelimit.Counter{}, err
	}
	next, err := policy.Admit(cur, token, now)
	if err != nil {
		return ratelimit.Counter{}, err
	}
	if err := saveCounter(ctx, tx, next, now); err != nil {
		return ratelimit.Counter{}, err
	}
	return next, nil
}

// lockCounter makes sure a counter row exists and locks it. A freshly created row
// is reported as absent.
func lockCounter(ctx context.Context, tx pgx.Tx, token string, now time.Time) (*ratelimit.Counter, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO guest_vote_limits (session_id, vote_count, window_start, last_vote_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (session_id) DO NOTHING
	`, token, now)
	if err != nil {
		return nil, storageError("create guest counter", err)
	}

	c := ratelimit.Counter{Token: token}
	err = tx.QueryRow(ctx, `
		SELECT vote_count, window_start FROM guest_vote_limits WHERE session_id = $1 FOR UPDATE
	`, token).Scan(&c.Count, &c.WindowStart)
	if err != nil {
		return nil, storageError("lock guest counter", err)
	}
	if c.Count == 0 {
		return nil, nil
	}
	return &c, nil
}

func saveCounter(ctx context.Context, tx pgx.Tx, c ratelimit.Counter, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE guest_vote_limits SET vote_count = $2, window_start = $3, last_vote_at = $4
		WHERE session_id = $1
	`, c.Token, c.Count, c.WindowStart, now)
	if err != nil {
		return storageError("update guest counter", err)
	}
	return nil
}
