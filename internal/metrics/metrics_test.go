package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveJudgment(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveJudgment(true, nil, time.Millisecond)
	m.ObserveJudgment(false, nil, time.Millisecond)
	limited := &ratelimit.LimitError{Count: 10, Limit: 10, ResetAt: time.Now()}
	m.ObserveJudgment(true, fmt.Errorf("failed to submit: %w", limited), time.Millisecond)
	m.ObserveJudgment(false, ranking.ErrDuplicateJudgment, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgments.WithLabelValues("guest", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgments.WithLabelValues("user", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgments.WithLabelValues("guest", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgments.WithLabelValues("user", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitHits))
}

func TestObservePair(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePair(1, nil, time.Millisecond)
	m.ObservePair(1, ranking.ErrPairsExhausted, time.Millisecond)
	m.ObservePair(2, ranking.ErrStorageUnavailable, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairRequests.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairRequests.WithLabelValues("unavailable")))
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetActiveSessions(3)
	m.AddPurged(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "photorank_active_guest_sessions 3")
	assert.Contains(t, string(body), "photorank_purged_guest_counters_total 2")
}
