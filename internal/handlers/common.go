package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"
	"photorank-backend/internal/repository"
	"photorank-backend/internal/services"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RateLimitResponse is returned with 429 when a guest is out of votes
type RateLimitResponse struct {
	Error   string    `json:"error"`
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
	Hint    string    `json:"hint"`
}

// respondJSON writes v with the given status
func respondJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondServiceError maps a domain error to its HTTP status
func respondServiceError(w http.ResponseWriter, err error) {
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(limitErr.ResetAt)))
		respondJSON(w, RateLimitResponse{
			Error:   "guest vote limit reached",
			Count:   limitErr.Count,
			Limit:   limitErr.Limit,
			ResetAt: limitErr.ResetAt,
			Hint:    "Sign in to keep voting, or come back " + humanize.Time(limitErr.ResetAt),
		}, http.StatusTooManyRequests)
		return
	}

	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	respondError(w, message, status)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ranking.ErrInsufficientItems):
		return http.StatusNotFound, "not enough photos in this category"
	case errors.Is(err, ranking.ErrPairsExhausted):
		return http.StatusGone, "you have judged every pair in this category"
	case errors.Is(err, ranking.ErrSameItem):
		return http.StatusBadRequest, "winner and loser must differ"
	case errors.Is(err, ranking.ErrPartitionMismatch):
		return http.StatusBadRequest, "photos belong to different categories"
	case errors.Is(err, ranking.ErrNoVoter):
		return http.StatusBadRequest, "voter identity required"
	case errors.Is(err, ranking.ErrItemNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ranking.ErrDuplicateJudgment):
		return http.StatusConflict, "you already voted on this pair"
	case errors.Is(err, ranking.ErrRateLimited), errors.Is(err, repository.ErrUploadLimit):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, ranking.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage temporarily unavailable"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrUnknownProvider):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func retryAfter(resetAt time.Time) int {
	secs := int(time.Until(resetAt).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// idParam parses a positive int64 URL parameter
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeJSON reads a size-bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
