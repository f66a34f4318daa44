package repository

import (
	"context"
	"fmt"

	"photorank-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

const photoColumns = `id, filename, elo_rating, total_duels, wins, owner_id, category_id, created_at`

// PhotoRepository handles database operations for photos
type PhotoRepository struct {
	db *pgxpool.Pool
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create inserts a photo at the baseline rating
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (filename, owner_id, category_id)
		VALUES ($1, $2, $3)
		RETURNING id, elo_rating, total_duels, wins, created_at
	`
	err := r.db.QueryRow(ctx, query, photo.Filename, photo.OwnerID, photo.CategoryID).Scan(
		&photo.ID, &photo.EloRating, &photo.TotalDuels, &photo.Wins, &photo.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("photo %q %w", photo.Filename, ErrConflict)
		}
		return storageError("create photo", err)
	}
	return nil
}

// GetByID retrieves a photo by ID
func (r *PhotoRepository) GetByID(ctx context.Context, id int64) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	var photo models.Photo
	err := r.db.QueryRow(ctx, query, id).Scan(
		&photo.ID, &photo.Filename, &photo.EloRating, &photo.TotalDuels, &photo.Wins,
		&photo.OwnerID, &photo.CategoryID, &photo.CreatedAt,
	)
	if err != nil {
		return nil, notFound("photo", err)
	}
	return &photo, nil
}

// GetByCategory returns every photo of a category ordered by ID
func (r *PhotoRepository) GetByCategory(ctx context.Context, categoryID int64) ([]models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE category_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, categoryID)
	if err != nil {
		return nil, storageError("get category photos", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var photo models.Photo
		err := rows.Scan(
			&photo.ID, &photo.Filename, &photo.EloRating, &photo.TotalDuels, &photo.Wins,
			&photo.OwnerID, &photo.CategoryID, &photo.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}
	return photos, nil
}

// Leaderboard returns photos with at least minDuels comparisons, best first.
// categoryID 0 means every category; limit 0 means no limit.
func (r *PhotoRepository) Leaderboard(ctx context.Context, categoryID int64, minDuels, limit int) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT p.id, p.filename, p.elo_rating, p.total_duels, p.wins, p.owner_id, p.category_id, p.created_at,
			u.username, c.name
		FROM photos p
		JOIN users u ON u.id = p.owner_id
		JOIN categories c ON c.id = p.category_id
		WHERE p.total_duels >= $1 AND ($2 = 0 OR p.category_id = $2)
		ORDER BY p.elo_rating DESC, p.id
		LIMIT NULLIF($3, 0)
	`
	rows, err := r.db.Query(ctx, query, minDuels, categoryID, limit)
	if err != nil {
		return nil, storageError("get leaderboard", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		err := rows.Scan(
			&e.ID, &e.Filename, &e.EloRating, &e.TotalDuels, &e.Wins, &e.OwnerID, &e.CategoryID, &e.CreatedAt,
			&e.OwnerUsername, &e.CategoryName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}

// SetRating overrides a photo's rating
func (r *PhotoRepository) SetRating(ctx context.Context, photoID int64, rating float64) (*models.Photo, error) {
	query := `UPDATE photos SET elo_rating = $1 WHERE id = $2 RETURNING ` + photoColumns
	var photo models.Photo
	err := r.db.QueryRow(ctx, query, rating, photoID).Scan(
		&photo.ID, &photo.Filename, &photo.EloRating, &photo.TotalDuels, &photo.Wins,
		&photo.OwnerID, &photo.CategoryID, &photo.CreatedAt,
	)
	if err != nil {
		return nil, notFound("photo", err)
	}
	return &photo, nil
}

// Delete deletes a photo by ID. Its votes go with it.
func (r *PhotoRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return storageError("delete photo", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("photo %w", ErrNotFound)
	}
	return nil
}
