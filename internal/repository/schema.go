package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		total_votes INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (provider, provider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		question TEXT NOT NULL,
		owner_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_name_lower_idx ON categories (lower(name))`,
	`CREATE TABLE IF NOT EXISTS photos (
		id BIGSERIAL PRIMARY KEY,
		filename TEXT NOT NULL UNIQUE,
		elo_rating DOUBLE PRECISION NOT NULL DEFAULT 1200.0,
		total_duels INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (total_duels >= wins AND wins >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS photos_category_idx ON photos (category_id, elo_rating DESC)`,
	`CREATE INDEX IF NOT EXISTS photos_owner_idx ON photos (owner_id)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id BIGSERIAL PRIMARY KEY,
		voter_key TEXT NOT NULL,
		user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
		winner_id BIGINT NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
		loser_id BIGINT NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
		pair_low BIGINT NOT NULL,
		pair_high BIGINT NOT NULL,
		ip_hash TEXT,
		ua_hash TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (winner_id <> loser_id),
		CHECK (pair_low < pair_high)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS votes_voter_pair_idx ON votes (voter_key, pair_low, pair_high)`,
	`CREATE INDEX IF NOT EXISTS votes_user_idx ON votes (user_id)`,
	`CREATE INDEX IF NOT EXISTS votes_created_idx ON votes (created_at)`,
	`CREATE TABLE IF NOT EXISTS guest_vote_limits (
		session_id TEXT PRIMARY KEY,
		vote_count INTEGER NOT NULL DEFAULT 0,
		window_start TIMESTAMPTZ NOT NULL,
		last_vote_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS upload_limits (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		upload_count INTEGER NOT NULL DEFAULT 0,
		last_upload_date DATE NOT NULL DEFAULT CURRENT_DATE
	)`,
}

// CreateSchema creates the tables and indexes that do not exist yet
func CreateSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
