package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUploadLimit is returned when a reservation would exceed the daily upload limit
var ErrUploadLimit = errors.New("daily upload limit reached")

// UploadRepository tracks daily upload counts per user
type UploadRepository struct {
	db *pgxpool.Pool
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{db: db}
}

// Reserve counts n uploads against today's limit and returns today's new total.
// The counter resets on the first upload of a new day.
func (r *UploadRepository) Reserve(ctx context.Context, userID int64, n, limit int) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, storageError("begin upload reservation", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO upload_limits (user_id, upload_count, last_upload_date)
		VALUES ($1, 0, CURRENT_DATE)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return 0, storageError("create upload counter", err)
	}

	var used int
	err = tx.QueryRow(ctx, `
		SELECT CASE WHEN last_upload_date < CURRENT_DATE THEN 0 ELSE upload_count END
		FROM upload_limits
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&used)
	if err != nil {
		return 0, storageError("lock upload counter", err)
	}
	if used+n > limit {
		return used, fmt.Errorf("%w (%d/%d)", ErrUploadLimit, used, limit)
	}

	_, err = tx.Exec(ctx, `
		UPDATE upload_limits SET upload_count = $2, last_upload_date = CURRENT_DATE WHERE user_id = $1
	`, userID, used+n)
	if err != nil {
		return 0, storageError("update upload counter", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storageError("commit upload reservation", err)
	}
	return used + n, nil
}

// Release gives back n uploads reserved today that were never created.
// Reservations from an earlier day are already reset and left alone.
func (r *UploadRepository) Release(ctx context.Context, userID int64, n int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE upload_limits
		SET upload_count = GREATEST(upload_count - $2, 0)
		WHERE user_id = $1 AND last_upload_date = CURRENT_DATE
	`, userID, n)
	if err != nil {
		return storageError("release upload reservation", err)
	}
	return nil
}
