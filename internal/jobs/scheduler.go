// Package jobs runs periodic maintenance on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// GuestCounters is the guest rate-limit state the purge job maintains
type GuestCounters interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
	ActiveSessions(ctx context.Context, cutoff time.Time) (int, error)
}

// Reporter receives purge results
type Reporter interface {
	AddPurged(n int64)
	SetActiveSessions(n int)
}

// Sweeper drops idle in-memory state
type Sweeper interface {
	Sweep() int
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	counters GuestCounters
	reporter Reporter
	sweeper  Sweeper
	window   time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler in UTC. reporter and sweeper may be nil.
func NewScheduler(counters GuestCounters, window time.Duration, reporter Reporter, sweeper Sweeper) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		counters: counters,
		reporter: reporter,
		sweeper:  sweeper,
		window:   window,
		now:      time.Now,
	}
}

// Start registers the purge job on schedule and starts the cron loop
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		log.Debug().Msg("[CRON] Purging expired guest counters")
		if err := s.Purge(ctx); err != nil {
			log.Error().Err(err).Msg("[CRON] Guest counter purge failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule purge job %q: %w", schedule, err)
	}

	s.cron.Start()
	log.Info().Str("schedule", schedule).Msg("Job scheduler started")
	return nil
}

// Purge removes guest counters whose window has ended and refreshes the active session gauge
func (s *Scheduler) Purge(ctx context.Context) error {
	cutoff := s.now().Add(-s.window)

	purged, err := s.counters.PurgeExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge guest counters: %w", err)
	}
	active, err := s.counters.ActiveSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to count guest sessions: %w", err)
	}

	swept := 0
	if s.sweeper != nil {
		swept = s.sweeper.Sweep()
	}
	if s.reporter != nil {
		s.reporter.AddPurged(purged)
		s.reporter.SetActiveSessions(active)
	}

	log.Info().
		Int64("purged", purged).
		Int("active_sessions", active).
		Int("throttle_swept", swept).
		Msg("[CRON] Guest counters purged")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Job scheduler stopped")
}
