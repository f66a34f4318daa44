package repository

import (
	"context"
	"fmt"

	"photorank-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CategoryRepository handles database operations for categories
type CategoryRepository struct {
	db *pgxpool.Pool
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a category. Names are unique regardless of case.
func (r *CategoryRepository) Create(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (name, description, question, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, c.Name, c.Description, c.Question, c.OwnerID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q %w", c.Name, ErrConflict)
		}
		return storageError("create category", err)
	}
	return nil
}

// List returns every category by name
func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	query := `
		SELECT id, name, description, question, owner_id, created_at
		FROM categories
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, storageError("list categories", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Question, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return out, nil
}

// GetByID retrieves a category by ID
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByName retrieves a category by name, ignoring case
func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*models.Category, error) {
	return r.getOne(ctx, `WHERE lower(name) = lower($1)`, name)
}

func (r *CategoryRepository) getOne(ctx context.Context, where string, arg any) (*models.Category, error) {
	query := `SELECT id, name, description, question, owner_id, created_at FROM categories ` + where
	var c models.Category
	err := r.db.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Name, &c.Description, &c.Question, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		return nil, notFound("category", err)
	}
	return &c, nil
}

// Details returns categories with vote totals and their current leader, busiest first
func (r *CategoryRepository) Details(ctx context.Context) ([]models.CategoryDetail, error) {
	query := `
		WITH vote_counts AS (
			SELECT p.category_id, COUNT(v.id) AS total_votes
			FROM votes v
			JOIN photos p ON p.id = v.winner_id
			GROUP BY p.category_id
		), leaders AS (
			SELECT p.category_id, p.filename, p.elo_rating, u.username,
				ROW_NUMBER() OVER (PARTITION BY p.category_id ORDER BY p.elo_rating DESC, p.id) AS rn
			FROM photos p
			JOIN users u ON u.id = p.owner_id
		)
		SELECT c.id, c.name, c.description, c.question, c.owner_id, c.created_at,
			COALESCE(vc.total_votes, 0), l.filename, l.elo_rating, l.username
		FROM categories c
		LEFT JOIN vote_counts vc ON vc.category_id = c.id
		LEFT JOIN leaders l ON l.category_id = c.id AND l.rn = 1
		ORDER BY COALESCE(vc.total_votes, 0) DESC, c.name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, storageError("get category details", err)
	}
	defer rows.Close()

	var out []models.CategoryDetail
	for rows.Next() {
		var d models.CategoryDetail
		err := rows.Scan(
			&d.ID, &d.Name, &d.Description, &d.Question, &d.OwnerID, &d.CreatedAt,
			&d.TotalVotes, &d.LeaderFilename, &d.LeaderElo, &d.LeaderOwner,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category detail: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category details: %w", err)
	}
	return out, nil
}
