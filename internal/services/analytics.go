package services

import (
	"context"
	"time"

	"photorank-backend/internal/models"
	"photorank-backend/internal/repository"
)

// AnalyticsService exposes moderator-facing counts
type AnalyticsService struct {
	repo        *repository.AnalyticsRepository
	guestWindow time.Duration
}

func NewAnalyticsService(repo *repository.AnalyticsRepository, guestWindow time.Duration) *AnalyticsService {
	return &AnalyticsService{repo: repo, guestWindow: guestWindow}
}

// Overview returns user, photo and vote totals
func (s *AnalyticsService) Overview(ctx context.Context) (*models.Overview, error) {
	return s.repo.Overview(ctx, s.guestWindow)
}
