package handlers

import (
	"net/http"

	"photorank-backend/internal/services"
)

// AnalyticsHandler serves moderator analytics
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Overview handles GET /api/v1/analytics/overview
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.analytics.Overview(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, overview, http.StatusOK)
}
