package services

import (
	"context"
	"fmt"
	"time"

	"photorank-backend/internal/config"
	"photorank-backend/internal/models"
	"photorank-backend/internal/repository"
	"photorank-backend/internal/storage"

	"github.com/rs/zerolog/log"
)

const (
	// MinLeaderboardDuels hides photos that have barely been compared.
	MinLeaderboardDuels = 2
	maxLeaderboardLimit = 1000
	maxElo              = 4000.0
)

// ObjectStore presigns photo transfers
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (*storage.Presigned, error)
	PresignDownload(ctx context.Context, key string) (*storage.Presigned, error)
	Delete(ctx context.Context, key string) error
}

// PhotoStore persists photo rows
type PhotoStore interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id int64) (*models.Photo, error)
	Leaderboard(ctx context.Context, categoryID int64, minDuels, limit int) ([]models.LeaderboardEntry, error)
	SetRating(ctx context.Context, photoID int64, rating float64) (*models.Photo, error)
	Delete(ctx context.Context, id int64) error
}

// CategoryLookup finds categories by id or name
type CategoryLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	GetByName(ctx context.Context, name string) (*models.Category, error)
}

// UploadQuota counts uploads against a daily limit
type UploadQuota interface {
	Reserve(ctx context.Context, userID int64, n, limit int) (int, error)
	Release(ctx context.Context, userID int64, n int) error
}

// PhotoService handles photo-related business logic
type PhotoService struct {
	photoRepo    PhotoStore
	categoryRepo CategoryLookup
	uploadRepo   UploadQuota
	store        ObjectStore
	uploads      config.UploadsConfig
}

// NewPhotoService creates a new photo service
func NewPhotoService(
	photoRepo PhotoStore,
	categoryRepo CategoryLookup,
	uploadRepo UploadQuota,
	store ObjectStore,
	uploads config.UploadsConfig,
) *PhotoService {
	return &PhotoService{
		photoRepo:    photoRepo,
		categoryRepo: categoryRepo,
		uploadRepo:   uploadRepo,
		store:        store,
		uploads:      uploads,
	}
}

// UploadRequest asks for presigned upload URLs for one or more photos
type UploadRequest struct {
	CategoryID   int64    `json:"category_id" validate:"required,gt=0"`
	ContentTypes []string `json:"content_types" validate:"required,min=1,dive,required"`
}

// UploadTicket is a created photo and the URL its bytes must be PUT to
type UploadTicket struct {
	Photo  *models.Photo      `json:"photo"`
	Upload *storage.Presigned `json:"upload"`
}

// Upload presigns the uploads, reserves the user's daily quota and creates the photo rows.
// If a row cannot be created, rows already created are removed and the quota is given back.
func (s *PhotoService) Upload(ctx context.Context, userID int64, req UploadRequest) ([]UploadTicket, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(req.ContentTypes) > s.uploads.MaxBatch {
		return nil, fmt.Errorf("%w: batch size exceeds limit of %d", ErrInvalidInput, s.uploads.MaxBatch)
	}

	tickets := make([]UploadTicket, len(req.ContentTypes))
	for i, ct := range req.ContentTypes {
		key, err := storage.NewKey(req.CategoryID, ct)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		tickets[i].Photo = &models.Photo{Filename: key, OwnerID: userID, CategoryID: req.CategoryID}
	}

	if _, err := s.categoryRepo.GetByID(ctx, req.CategoryID); err != nil {
		return nil, err
	}
	// Presigning is local signing, so it runs before any state changes.
	for i := range tickets {
		presigned, err := s.store.PresignUpload(ctx, tickets[i].Photo.Filename, req.ContentTypes[i])
		if err != nil {
			return nil, err
		}
		tickets[i].Upload = presigned
	}

	if _, err := s.uploadRepo.Reserve(ctx, userID, len(tickets), s.uploads.DailyLimit); err != nil {
		return nil, err
	}
	for i := range tickets {
		if err := s.photoRepo.Create(ctx, tickets[i].Photo); err != nil {
			s.rollbackUpload(ctx, userID, len(tickets), tickets[:i])
			return nil, fmt.Errorf("failed to create photo record: %w", err)
		}
	}

	log.Info().
		Int64("user_id", userID).
		Int64("category_id", req.CategoryID).
		Int("count", len(tickets)).
		Msg("Photo uploads presigned")
	return tickets, nil
}

// rollbackUpload undoes a partially created batch. It uses a fresh context so a
// cancelled request still gets its quota back.
func (s *PhotoService) rollbackUpload(ctx context.Context, userID int64, reserved int, created []UploadTicket) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	released := reserved
	for _, t := range created {
		if err := s.photoRepo.Delete(ctx, t.Photo.ID); err != nil {
			// The row stays, so its quota slot is still in use.
			released--
			log.Warn().
				Err(err).
				Int64("photo_id", t.Photo.ID).
				Msg("Failed to remove photo of failed upload batch")
		}
	}
	if err := s.uploadRepo.Release(ctx, userID, released); err != nil {
		log.Warn().
			Err(err).
			Int64("user_id", userID).
			Msg("Failed to release upload reservation")
	}
}

// DownloadURL returns a presigned GET URL for a photo
func (s *PhotoService) DownloadURL(ctx context.Context, photoID int64) (*storage.Presigned, error) {
	photo, err := s.photoRepo.GetByID(ctx, photoID)
	if err != nil {
		return nil, err
	}
	return s.store.PresignDownload(ctx, photo.Filename)
}

// Leaderboard returns ranked photos of one category, or of all when categoryID is 0
func (s *PhotoService) Leaderboard(ctx context.Context, categoryID int64, limit int) ([]models.LeaderboardEntry, error) {
	if limit < 0 || limit > maxLeaderboardLimit {
		return nil, fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidInput, maxLeaderboardLimit)
	}
	entries, err := s.photoRepo.Leaderboard(ctx, categoryID, MinLeaderboardDuels, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	return entries, nil
}

// LeaderboardByName returns the leaderboard of a category looked up by name
func (s *PhotoService) LeaderboardByName(ctx context.Context, name string, limit int) ([]models.LeaderboardEntry, error) {
	category, err := s.categoryRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Leaderboard(ctx, category.ID, limit)
}

// SetRating overrides a photo's rating. Only moderators reach this.
func (s *PhotoService) SetRating(ctx context.Context, photoID int64, elo float64) (*models.Photo, error) {
	if err := ValidateRating(elo); err != nil {
		return nil, err
	}
	return s.photoRepo.SetRating(ctx, photoID, elo)
}

// ValidateRating checks a moderator-provided rating
func ValidateRating(elo float64) error {
	if !(elo > 0 && elo < maxElo) {
		return fmt.Errorf("%w: elo must be between 0 and %.0f", ErrInvalidInput, maxElo)
	}
	return nil
}

// Actor is the caller of a moderation action
type Actor struct {
	UserID    int64
	Moderator bool
}

// Delete removes a photo owned by the actor, or any photo for moderators
func (s *PhotoService) Delete(ctx context.Context, actor Actor, photoID int64) error {
	photo, err := s.photoRepo.GetByID(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.OwnerID != actor.UserID && !actor.Moderator {
		return ErrForbidden
	}
	return s.delete(ctx, photo)
}

// DeleteInCategory removes a photo of a category the actor owns, or any photo for moderators
func (s *PhotoService) DeleteInCategory(ctx context.Context, actor Actor, categoryID, photoID int64) error {
	category, err := s.categoryRepo.GetByID(ctx, categoryID)
	if err != nil {
		return err
	}
	photo, err := s.photoRepo.GetByID(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.CategoryID != category.ID {
		return fmt.Errorf("photo %w in category", repository.ErrNotFound)
	}
	isOwner := category.OwnerID != nil && *category.OwnerID == actor.UserID
	if !isOwner && !actor.Moderator {
		return ErrForbidden
	}
	return s.delete(ctx, photo)
}

func (s *PhotoService) delete(ctx context.Context, photo *models.Photo) error {
	if err := s.photoRepo.Delete(ctx, photo.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, photo.Filename); err != nil {
		log.Warn().
			Err(err).
			Int64("photo_id", photo.ID).
			Str("key", photo.Filename).
			Msg("Failed to delete photo object")
	}
	log.Info().Int64("photo_id", photo.ID).Msg("Photo deleted")
	return nil
}

