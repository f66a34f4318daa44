package handlers

import (
	"net/http"
	"strconv"

	"photorank-backend/internal/middleware"
	"photorank-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const defaultLeaderboardLimit = 100

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photoService *services.PhotoService
	moderators   middleware.ModeratorChecker
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService *services.PhotoService, moderators middleware.ModeratorChecker) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
		moderators:   moderators,
	}
}

// Upload handles POST /api/v1/photos/upload
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.UploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tickets, err := h.photoService.Upload(ctx, userID, req)
	if err != nil {
		log.Warn().
			Err(err).
			Int64("user_id", userID).
			Int64("category_id", req.CategoryID).
			Msg("Failed to presign uploads")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, map[string]any{"uploads": tickets}, http.StatusCreated)
}

// DownloadURL handles GET /api/v1/photos/{id}/url
func (h *PhotoHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, "Invalid photo id", http.StatusBadRequest)
		return
	}
	presigned, err := h.photoService.DownloadURL(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, presigned, http.StatusOK)
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *PhotoHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r)
	if !ok {
		respondError(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	var categoryID int64
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, "Invalid category_id", http.StatusBadRequest)
			return
		}
		categoryID = id
	}

	entries, err := h.photoService.Leaderboard(r.Context(), categoryID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, entries, http.StatusOK)
}

// LeaderboardByName handles GET /api/v1/leaderboard/{category_name}
func (h *PhotoHandler) LeaderboardByName(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r)
	if !ok {
		respondError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	entries, err := h.photoService.LeaderboardByName(r.Context(), chi.URLParam(r, "category_name"), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, entries, http.StatusOK)
}

// SetRatingRequest is a moderator rating override
type SetRatingRequest struct {
	Elo float64 `json:"elo"`
}

// SetRating handles PATCH /api/v1/photos/{id}/elo
func (h *PhotoHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, "Invalid photo id", http.StatusBadRequest)
		return
	}
	var req SetRatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	photo, err := h.photoService.SetRating(r.Context(), id, req.Elo)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Int64("moderator_id", middleware.GetUserID(r.Context())).
		Int64("photo_id", id).
		Float64("elo", req.Elo).
		Msg("Photo rating overridden")
	respondJSON(w, photo, http.StatusOK)
}

// Delete handles DELETE /api/v1/photos/{id}
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, "Invalid photo id", http.StatusBadRequest)
		return
	}
	actor, err := h.actor(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.photoService.Delete(r.Context(), actor, id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteInCategory handles DELETE /api/v1/categories/{id}/photos/{photo_id}
func (h *PhotoHandler) DeleteInCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := idParam(r, "id")
	if !ok {
		respondError(w, "Invalid category id", http.StatusBadRequest)
		return
	}
	photoID, ok := idParam(r, "photo_id")
	if !ok {
		respondError(w, "Invalid photo id", http.StatusBadRequest)
		return
	}
	actor, err := h.actor(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.photoService.DeleteInCategory(r.Context(), actor, categoryID, photoID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PhotoHandler) actor(r *http.Request) (services.Actor, error) {
	userID := middleware.GetUserID(r.Context())
	moderator, err := h.moderators.IsModeratorID(r.Context(), userID)
	if err != nil {
		return services.Actor{}, err
	}
	return services.Actor{UserID: userID, Moderator: moderator}, nil
}

func limitParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLeaderboardLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
