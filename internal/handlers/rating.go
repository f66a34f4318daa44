package handlers

import (
	"context"
	"net/http"
	"time"

	"photorank-backend/internal/middleware"
	"photorank-backend/internal/ranking"

	"github.com/rs/zerolog/log"
)

// Broadcaster publishes accepted judgments to live subscribers
type Broadcaster interface {
	BroadcastJudgment(outcome *ranking.Outcome)
}

// VoteCounter reports a user's lifetime vote count
type VoteCounter interface {
	VoteCount(ctx context.Context, userID int64) (int, error)
}

// RatingHandler serves pairs and accepts votes
type RatingHandler struct {
	engine      *ranking.Engine
	broadcaster Broadcaster
	votes       VoteCounter
}

// NewRatingHandler creates a new rating handler
func NewRatingHandler(engine *ranking.Engine, broadcaster Broadcaster, votes VoteCounter) *RatingHandler {
	return &RatingHandler{
		engine:      engine,
		broadcaster: broadcaster,
		votes:       votes,
	}
}

// VoteRequest represents the request body for a vote
type VoteRequest struct {
	WinnerID int64 `json:"winner_id"`
	LoserID  int64 `json:"loser_id"`
}

// QuotaResponse describes the caller's remaining votes
type QuotaResponse struct {
	Authenticated bool       `json:"authenticated"`
	Remaining     int        `json:"remaining_votes"`
	Used          int        `json:"used"`
	Limit         int        `json:"limit"`
	ResetAt       *time.Time `json:"reset_at,omitempty"`
}

// voterFrom resolves the caller: a signed-in user, else the guest session
func voterFrom(r *http.Request) (ranking.Voter, middleware.Guest) {
	guest, _ := middleware.GetGuest(r.Context())
	if userID := middleware.GetUserID(r.Context()); userID != 0 {
		return ranking.UserVoter(userID), guest
	}
	return ranking.GuestVoter(guest.Token), guest
}

// GetPair handles GET /api/v1/categories/{id}/pair
func (h *RatingHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := idParam(r, "id")
	if !ok {
		respondError(w, "Invalid category id", http.StatusBadRequest)
		return
	}

	// Guests draw uniform random pairs; only signed-in users get exclusion.
	req := ranking.PairRequest{PartitionID: categoryID}
	if voter, _ := voterFrom(r); !voter.Anonymous() {
		req.Voter = &voter
	}
	pair, err := h.engine.RequestPair(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, pair, http.StatusOK)
}

// SubmitVote handles POST /api/v1/votes
func (h *RatingHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WinnerID <= 0 || req.LoserID <= 0 {
		respondError(w, "winner_id and loser_id are required", http.StatusBadRequest)
		return
	}

	voter, guest := voterFrom(r)
	jr := ranking.JudgmentRequest{
		Voter:    voter,
		WinnerID: req.WinnerID,
		LoserID:  req.LoserID,
	}
	if voter.Anonymous() {
		jr.IPHash = guest.IPHash
		jr.UserAgentHash = guest.UserAgentHash
	}

	outcome, err := h.engine.SubmitJudgment(r.Context(), jr)
	if err != nil {
		if status, _ := classify(err); status >= http.StatusInternalServerError {
			log.Error().
				Err(err).
				Int64("winner_id", req.WinnerID).
				Int64("loser_id", req.LoserID).
				Msg("Failed to record vote")
		}
		respondServiceError(w, err)
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastJudgment(outcome)
	}

	log.Debug().
		Str("voter", voter.Key()).
		Int64("winner_id", outcome.Winner.ID).
		Int64("loser_id", outcome.Loser.ID).
		Float64("delta", outcome.WinnerDelta).
		Msg("Vote recorded")

	respondJSON(w, outcome, http.StatusCreated)
}

// GetQuota handles GET /api/v1/votes/quota
func (h *RatingHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	voter, _ := voterFrom(r)
	if !voter.Anonymous() {
		respondJSON(w, QuotaResponse{Authenticated: true, Remaining: ranking.Unlimited, Limit: ranking.Unlimited}, http.StatusOK)
		return
	}

	status, err := h.engine.QuotaStatus(r.Context(), voter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := QuotaResponse{
		Remaining: status.Remaining,
		Used:      status.Used,
		Limit:     status.Limit,
	}
	if !status.ResetAt.IsZero() {
		resp.ResetAt = &status.ResetAt
	}
	respondJSON(w, resp, http.StatusOK)
}

// GetVoteStats handles GET /api/v1/votes/stats
func (h *RatingHandler) GetVoteStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	count, err := h.votes.VoteCount(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to count votes")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"user_id": userID, "total_votes": count}, http.StatusOK)
}
