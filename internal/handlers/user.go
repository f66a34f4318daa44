package handlers

import (
	"net/http"

	"photorank-backend/internal/middleware"
	"photorank-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// MeResponse is the signed-in user's profile
type MeResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Provider    string `json:"provider"`
	TotalVotes  int    `json:"total_votes"`
	IsModerator bool   `json:"is_moderator"`
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, MeResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Provider:    user.Provider,
		TotalVotes:  user.TotalVotes,
		IsModerator: h.userService.IsModerator(user),
	}, http.StatusOK)
}

// GetStats handles GET /api/v1/users/stats
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	stats, err := h.userService.Stats(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user stats")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, stats, http.StatusOK)
}
