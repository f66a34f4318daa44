package repository

import (
	"context"
	"time"

	"photorank-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// AnalyticsRepository runs aggregate queries for moderators
type AnalyticsRepository struct {
	db *pgxpool.Pool
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Overview collects site totals. Queries run concurrently on the pool.
func (r *AnalyticsRepository) Overview(ctx context.Context, guestWindow time.Duration) (*models.Overview, error) {
	var o models.Overview
	now := time.Now()
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, 0, -30)

	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&o.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&o.NewUsers7d, `SELECT COUNT(*) FROM users WHERE created_at >= $1`, []any{week}},
		{&o.NewUsers30d, `SELECT COUNT(*) FROM users WHERE created_at >= $1`, []any{month}},
		{&o.TotalPhotos, `SELECT COUNT(*) FROM photos`, nil},
		{&o.NewPhotos7d, `SELECT COUNT(*) FROM photos WHERE created_at >= $1`, []any{week}},
		{&o.NewPhotos30d, `SELECT COUNT(*) FROM photos WHERE created_at >= $1`, []any{month}},
		{&o.TotalVotes, `SELECT COUNT(*) FROM votes`, nil},
		{&o.GuestVotes, `SELECT COUNT(*) FROM votes WHERE user_id IS NULL`, nil},
		{&o.UsersWithUploadsLifetime, `SELECT COUNT(DISTINCT owner_id) FROM photos`, nil},
		{&o.UsersWithUploads30d, `SELECT COUNT(DISTINCT owner_id) FROM photos WHERE created_at >= $1`, []any{month}},
		{&o.ActiveGuestSessions, `SELECT COUNT(*) FROM guest_vote_limits WHERE window_start >= $1 AND vote_count > 0`, []any{now.Add(-guestWindow)}},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, c := range counts {
		g.Go(func() error {
			if err := r.db.QueryRow(ctx, c.query, c.args...).Scan(c.dst); err != nil {
				return storageError("run analytics query", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &o, nil
}
