package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"photorank-backend/internal/middleware"
	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens map[string]int64

func (s stubTokens) ValidateJWT(token string) (int64, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	outcomes []*ranking.Outcome
}

func (b *recordingBroadcaster) BroadcastJudgment(o *ranking.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes = append(b.outcomes, o)
}

type fixedVotes int

func (v fixedVotes) VoteCount(context.Context, int64) (int, error) { return int(v), nil }

type ratingServer struct {
	store       *ranking.MemoryStore
	broadcaster *recordingBroadcaster
	router      http.Handler
}

func newRatingServer(t *testing.T) *ratingServer {
	t.Helper()
	store := ranking.NewMemoryStore(ratelimit.DefaultWindow)
	t.Cleanup(store.Close)

	limiter := ratelimit.NewLimiter(ratelimit.DefaultPolicy(), store)
	engine := ranking.NewEngine(store, limiter)
	broadcaster := &recordingBroadcaster{}
	h := NewRatingHandler(engine, broadcaster, fixedVotes(42))
	tokens := stubTokens{"user-token": 5}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.GuestSession(middleware.NewFingerprinter("k"), false))
		r.Use(middleware.OptionalAuth(tokens))
		r.Get("/categories/{id}/pair", h.GetPair)
		r.Post("/votes", h.SubmitVote)
		r.Get("/votes/quota", h.GetQuota)
	})
	r.With(middleware.RequireAuth(tokens)).Get("/votes/stats", h.GetVoteStats)

	return &ratingServer{store: store, broadcaster: broadcaster, router: r}
}

func (s *ratingServer) seed(category int64, ids ...int64) {
	for _, id := range ids {
		s.store.AddItem(ranking.Item{ID: id, PartitionID: category, OwnerID: 1, Filename: "photos/x.jpg"})
	}
}

type client struct {
	guest string
	token string
}

func (s *ratingServer) do(t *testing.T, c client, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.guest != "" {
		req.AddCookie(&http.Cookie{Name: middleware.GuestCookie, Value: c.guest})
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func guestClient() client { return client{guest: uuid.NewString()} }

func TestGetPair(t *testing.T) {
	s := newRatingServer(t)
	s.seed(1, 10, 11)

	rec := s.do(t, guestClient(), http.MethodGet, "/categories/1/pair", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair ranking.Pair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.ElementsMatch(t, []int64{10, 11}, []int64{pair.First.ID, pair.Second.ID})
	assert.Equal(t, "photos/x.jpg", pair.First.Filename)
}

func TestGetPair_Errors(t *testing.T) {
	s := newRatingServer(t)
	s.seed(1, 10)

	rec := s.do(t, guestClient(), http.MethodGet, "/categories/1/pair", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, guestClient(), http.MethodGet, "/categories/abc/pair", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Given a signed-in user who judged the only pair, the category is exhausted
	s.seed(2, 20, 21)
	u := client{guest: uuid.NewString(), token: "user-token"}
	require.Equal(t, http.StatusCreated, s.do(t, u, http.MethodPost, "/votes", VoteRequest{WinnerID: 20, LoserID: 21}).Code)
	rec = s.do(t, u, http.MethodGet, "/categories/2/pair", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestGetPair_GuestRandom(t *testing.T) {
	s := newRatingServer(t)
	s.seed(2, 20, 21)
	g := guestClient()

	// Given a guest who judged the only pair
	require.Equal(t, http.StatusCreated, s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: 20, LoserID: 21}).Code)

	// When they ask for another pair
	rec := s.do(t, g, http.MethodGet, "/categories/2/pair", nil)

	// Then they still get one, since guests draw at random
	require.Equal(t, http.StatusOK, rec.Code)
	var pair ranking.Pair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.ElementsMatch(t, []int64{20, 21}, []int64{pair.First.ID, pair.Second.ID})

	// And voting on it again is a conflict
	rec = s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: 21, LoserID: 20})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, s.store.Ledger(), 1)
}

func TestSubmitVote_Guest(t *testing.T) {
	s := newRatingServer(t)
	s.seed(1, 10, 11)
	g := guestClient()

	rec := s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: 10, LoserID: 11})
	require.Equal(t, http.StatusCreated, rec.Code)

	var out ranking.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.InDelta(t, 1216, out.Winner.Rating, 1e-9)
	assert.InDelta(t, 1184, out.Loser.Rating, 1e-9)
	assert.Equal(t, 9, out.Remaining)
	require.Len(t, s.broadcaster.outcomes, 1)

	ledger := s.store.Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, g.guest, ledger[0].Voter.SessionToken)
	assert.Len(t, ledger[0].IPHash, 64)

	// Then the same pair in reverse order is a duplicate
	rec = s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: 11, LoserID: 10})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, s.broadcaster.outcomes, 1)
}

func TestSubmitVote_Validation(t *testing.T) {
	s := newRatingServer(t)
	s.seed(1, 10, 11)
	s.seed(2, 20)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"same photo", VoteRequest{WinnerID: 10, LoserID: 10}, http.StatusBadRequest},
		{"missing ids", VoteRequest{}, http.StatusBadRequest},
		{"unknown photo", VoteRequest{WinnerID: 10, LoserID: 99}, http.StatusNotFound},
		{"cross category", VoteRequest{WinnerID: 10, LoserID: 20}, http.StatusBadRequest},
		{"malformed", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, guestClient(), http.MethodPost, "/votes", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Empty(t, s.store.Ledger())
}

func TestSubmitVote_GuestLimit(t *testing.T) {
	s := newRatingServer(t)
	ids := []int64{1, 2, 3, 4, 5, 6}
	s.seed(1, ids...)
	g := guestClient()

	var pairs [][2]int64
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, [2]int64{ids[i], ids[j]})
		}
	}

	for _, p := range pairs[:ratelimit.DefaultLimit] {
		rec := s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: p[0], LoserID: p[1]})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	p := pairs[ratelimit.DefaultLimit]
	rec := s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: p[0], LoserID: p[1]})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ratelimit.DefaultLimit, body.Count)
	assert.Equal(t, ratelimit.DefaultLimit, body.Limit)
	assert.WithinDuration(t, time.Now().Add(ratelimit.DefaultWindow), body.ResetAt, time.Minute)
	assert.Contains(t, body.Hint, "from now")
	assert.Len(t, s.store.Ledger(), ratelimit.DefaultLimit)

	rec = s.do(t, g, http.MethodGet, "/votes/quota", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quota QuotaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quota))
	assert.Equal(t, 0, quota.Remaining)
	assert.Equal(t, ratelimit.DefaultLimit, quota.Used)
	assert.NotNil(t, quota.ResetAt)

	// A pair judged earlier is reported as a duplicate even at quota
	first := pairs[0]
	rec = s.do(t, g, http.MethodPost, "/votes", VoteRequest{WinnerID: first[1], LoserID: first[0]})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.Len(t, s.store.Ledger(), ratelimit.DefaultLimit)
}

func TestSubmitVote_UserUnlimited(t *testing.T) {
	s := newRatingServer(t)
	ids := []int64{1, 2, 3, 4, 5, 6}
	s.seed(1, ids...)
	u := client{guest: uuid.NewString(), token: "user-token"}

	accepted := 0
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			rec := s.do(t, u, http.MethodPost, "/votes", VoteRequest{WinnerID: ids[i], LoserID: ids[j]})
			require.Equal(t, http.StatusCreated, rec.Code)
			var out ranking.Outcome
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, ranking.Unlimited, out.Remaining)
			accepted++
		}
	}
	assert.Greater(t, accepted, ratelimit.DefaultLimit)
	assert.Equal(t, accepted, s.store.VoterTotal(5))
	assert.Empty(t, s.store.Ledger()[0].IPHash)

	rec := s.do(t, u, http.MethodGet, "/votes/quota", nil)
	var quota QuotaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quota))
	assert.True(t, quota.Authenticated)
	assert.Equal(t, ranking.Unlimited, quota.Remaining)
}

func TestGetVoteStats(t *testing.T) {
	s := newRatingServer(t)

	rec := s.do(t, client{}, http.MethodGet, "/votes/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, client{token: "user-token"}, http.MethodGet, "/votes/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 42, body["total_votes"])
	assert.Equal(t, 5, body["user_id"])
}
