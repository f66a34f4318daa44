package models

import (
	"time"

	"photorank-backend/internal/ranking"
)

// User represents a signed-in account
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"-"`
	TotalVotes int       `json:"total_votes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Category groups photos that are compared with each other
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Question    string    `json:"question"`
	OwnerID     *int64    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryDetail is a category with vote totals and its current leader
type CategoryDetail struct {
	Category
	TotalVotes     int      `json:"total_votes"`
	LeaderFilename *string  `json:"current_leader_filename,omitempty"`
	LeaderElo      *float64 `json:"current_leader_elo,omitempty"`
	LeaderOwner    *string  `json:"current_leader_owner,omitempty"`
}

// Photo represents an uploaded photo and its rating
type Photo struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	EloRating  float64   `json:"elo_rating"`
	TotalDuels int       `json:"total_duels"`
	Wins       int       `json:"wins"`
	OwnerID    int64     `json:"owner_id"`
	CategoryID int64     `json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Item returns the photo as seen by the rating engine
func (p *Photo) Item() ranking.Item {
	return ranking.Item{
		ID:          p.ID,
		PartitionID: p.CategoryID,
		OwnerID:     p.OwnerID,
		Filename:    p.Filename,
		Rating:      p.EloRating,
		Comparisons: p.TotalDuels,
		Wins:        p.Wins,
	}
}

// LeaderboardEntry is a ranked photo
type LeaderboardEntry struct {
	Photo
	OwnerUsername string `json:"owner_username"`
	CategoryName  string `json:"category_name"`
	Rank          int    `json:"rank"`
}

// UserStats summarizes a user's photos and votes
type UserStats struct {
	Photos      []LeaderboardEntry `json:"photos"`
	TotalPhotos int                `json:"total_photos"`
	TotalVotes  int                `json:"total_votes"`
}

// Overview is the moderator analytics summary
type Overview struct {
	TotalUsers               int `json:"total_users"`
	NewUsers7d               int `json:"new_users_7d"`
	NewUsers30d              int `json:"new_users_30d"`
	TotalPhotos              int `json:"total_photos"`
	NewPhotos7d              int `json:"new_photos_7d"`
	NewPhotos30d             int `json:"new_photos_30d"`
	TotalVotes               int `json:"total_votes"`
	GuestVotes               int `json:"guest_votes"`
	UsersWithUploadsLifetime int `json:"users_with_uploads_lifetime"`
	UsersWithUploads30d      int `json:"users_with_uploads_30d"`
	ActiveGuestSessions      int `json:"active_guest_sessions"`
}
