// Package metrics exposes Prometheus collectors for voting traffic.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"photorank-backend/internal/ranking"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements ranking.Observer using Prometheus.
type Metrics struct {
	pairRequests   *prometheus.CounterVec
	pairLatency    prometheus.Histogram
	judgments      *prometheus.CounterVec
	judgmentTime   *prometheus.HistogramVec
	rateLimitHits  prometheus.Counter
	activeSessions prometheus.Gauge
	purgedCounters prometheus.Counter
	gatherer       prometheus.Gatherer
}

var _ ranking.Observer = (*Metrics)(nil)

// New registers all collectors with reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pairRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photorank_pair_requests_total",
				Help: "Pair requests by outcome.",
			},
			[]string{"status"},
		),
		pairLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "photorank_pair_request_duration_seconds",
				Help:    "Time to sample a pair.",
				Buckets: prometheus.DefBuckets,
			},
		),
		judgments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photorank_judgments_total",
				Help: "Submitted judgments by voter kind and outcome.",
			},
			[]string{"voter", "status"},
		),
		judgmentTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photorank_judgment_duration_seconds",
				Help:    "Time to record a judgment.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"voter"},
		),
		rateLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "photorank_rate_limit_hits_total",
				Help: "Guest judgments rejected by the rate limiter.",
			},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "photorank_active_guest_sessions",
				Help: "Guest sessions with a live rate-limit window.",
			},
		),
		purgedCounters: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "photorank_purged_guest_counters_total",
				Help: "Expired guest counters removed by the purge job.",
			},
		),
		gatherer: reg,
	}
}

// ObservePair records a pair request.
func (m *Metrics) ObservePair(_ int64, err error, elapsed time.Duration) {
	m.pairRequests.WithLabelValues(status(err)).Inc()
	m.pairLatency.Observe(elapsed.Seconds())
}

// ObserveJudgment records a judgment submission.
func (m *Metrics) ObserveJudgment(anonymous bool, err error, elapsed time.Duration) {
	voter := "user"
	if anonymous {
		voter = "guest"
	}
	m.judgments.WithLabelValues(voter, status(err)).Inc()
	m.judgmentTime.WithLabelValues(voter).Observe(elapsed.Seconds())
	if errors.Is(err, ranking.ErrRateLimited) {
		m.rateLimitHits.Inc()
	}
}

// SetActiveSessions updates the active guest session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// AddPurged counts purged guest counters.
func (m *Metrics) AddPurged(n int64) {
	m.purgedCounters.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ranking.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ranking.ErrDuplicateJudgment):
		return "duplicate"
	case errors.Is(err, ranking.ErrPairsExhausted):
		return "exhausted"
	case errors.Is(err, ranking.ErrInsufficientItems):
		return "insufficient"
	case errors.Is(err, ranking.ErrStorageUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
