package repository

import (
	"context"
	"fmt"

	"photorank-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert returns the user for (provider, provider_id), creating it on first login.
// Email is refreshed on every login; the username is only set on creation.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, provider, provider_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_id) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, username, total_votes, created_at
	`
	err := r.db.QueryRow(ctx, query, user.Email, user.Username, user.Provider, user.ProviderID).Scan(
		&user.ID, &user.Username, &user.TotalVotes, &user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user email or username %w", ErrConflict)
		}
		return storageError("upsert user", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, username, provider, provider_id, total_votes, created_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Username, &user.Provider, &user.ProviderID,
		&user.TotalVotes, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// CountVotes returns how many ledger entries the user has
func (r *UserRepository) CountVotes(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, storageError("count user votes", err)
	}
	return n, nil
}

// RankedPhotos returns the user's photos with their global rank, best first
func (r *UserRepository) RankedPhotos(ctx context.Context, userID int64) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT p.id, p.filename, p.elo_rating, p.total_duels, p.wins, p.owner_id, p.category_id, p.created_at,
			u.username, c.name,
			(SELECT COUNT(*) FROM photos o WHERE o.elo_rating > p.elo_rating) + 1
		FROM photos p
		JOIN users u ON u.id = p.owner_id
		JOIN categories c ON c.id = p.category_id
		WHERE p.owner_id = $1
		ORDER BY p.elo_rating DESC, p.id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, storageError("get user photos", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		err := rows.Scan(
			&e.ID, &e.Filename, &e.EloRating, &e.TotalDuels, &e.Wins, &e.OwnerID, &e.CategoryID, &e.CreatedAt,
			&e.OwnerUsername, &e.CategoryName, &e.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user photo: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user photos: %w", err)
	}
	return entries, nil
}
