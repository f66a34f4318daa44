package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator map[string]int64

func (s stubValidator) ValidateJWT(token string) (int64, error) {
	id, ok := s[token]
	if !ok {
		return 0, errors.New("invalid")
	}
	return id, nil
}

type stubModerators map[int64]bool

func (s stubModerators) IsModeratorID(_ context.Context, userID int64) (bool, error) {
	return s[userID], nil
}

func userEcho(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-User", userLabel(GetUserID(r.Context())))
	w.WriteHeader(http.StatusOK)
}

func userLabel(id int64) string {
	if id == 0 {
		return "anon"
	}
	return "user"
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(stubValidator{"good": 7})(http.HandlerFunc(userEcho))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestOptionalAuth_FallsBackToAnonymous(t *testing.T) {
	h := OptionalAuth(stubValidator{"good": 7})(http.HandlerFunc(userEcho))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anon", rec.Header().Get("X-User"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "user", rec.Header().Get("X-User"))
}

func TestRequireModerator(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})
	h := RequireModerator(stubModerators{1: true})(next)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rec, req.WithContext(WithUserID(req.Context(), 2)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUserID(req.Context(), 1)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestSession_IssuesCookie(t *testing.T) {
	var guest Guest
	h := GuestSession(NewFingerprinter("secret"), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guest, _ = GetGuest(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, GuestCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, cookies[0].Value, guest.Token)
	_, err := uuid.Parse(guest.Token)
	assert.NoError(t, err)
	assert.Len(t, guest.IPHash, 64)
	assert.NotEqual(t, guest.IPHash, guest.UserAgentHash)
}

func TestGuestSession_ReusesValidCookie(t *testing.T) {
	token := uuid.NewString()
	var guest Guest
	h := GuestSession(NewFingerprinter(""), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guest, _ = GetGuest(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: GuestCookie, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, token, guest.Token)
	assert.Equal(t, token, GuestToken(req))

	// Given a tampered cookie, a fresh token is issued
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: GuestCookie, Value: "not-a-uuid"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "not-a-uuid", guest.Token)
	assert.Empty(t, GuestToken(req))
}

func TestFingerprinter_KeyedAndStable(t *testing.T) {
	a := NewFingerprinter("key-a")
	b := NewFingerprinter("key-b")

	assert.Equal(t, a.Hash("198.51.100.1"), a.Hash("198.51.100.1"))
	assert.NotEqual(t, a.Hash("198.51.100.1"), b.Hash("198.51.100.1"))
	assert.Empty(t, a.Hash(""))
}

func TestThrottle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottle(1, 2)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("a"))
	assert.True(t, th.Allow("a"))
	assert.False(t, th.Allow("a"))
	assert.True(t, th.Allow("b"), "buckets are per IP")

	now = now.Add(time.Second)
	assert.True(t, th.Allow("a"))

	now = now.Add(time.Hour)
	assert.Equal(t, 2, th.Sweep())
}

func TestThrottle_Middleware(t *testing.T) {
	th := NewThrottle(0.001, 1)
	h := th.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
