package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photorank-backend/internal/config"
	"photorank-backend/internal/models"
	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"
)

func newTestUserService(moderator config.ModeratorConfig) *UserService {
	return NewUserService(nil, nil, nil, config.JWTConfig{Secret: "test-secret-0123456789", TTL: time.Hour}, moderator)
}

func TestJWTRoundTrip(t *testing.T) {
	s := newTestUserService(config.ModeratorConfig{})

	token, err := s.GenerateJWT(77)
	require.NoError(t, err)

	id, err := s.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
}

func TestJWTRejections(t *testing.T) {
	s := newTestUserService(config.ModeratorConfig{})
	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{"sub": "1", "exp": future})},
		{"expired", sign(jwt.SigningMethodHS256, s.jwtSecret, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"no expiry", sign(jwt.SigningMethodHS256, s.jwtSecret, jwt.MapClaims{"sub": "1"})},
		{"other algorithm", sign(jwt.SigningMethodHS512, s.jwtSecret, jwt.MapClaims{"sub": "1", "exp": future})},
		{"missing subject", sign(jwt.SigningMethodHS256, s.jwtSecret, jwt.MapClaims{"exp": future})},
		{"non numeric subject", sign(jwt.SigningMethodHS256, s.jwtSecret, jwt.MapClaims{"sub": "abc", "exp": future})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ValidateJWT(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIsModerator(t *testing.T) {
	s := newTestUserService(config.ModeratorConfig{Provider: "github", ProviderID: "4242"})

	assert.True(t, s.IsModerator(&models.User{Provider: "github", ProviderID: "4242"}))
	assert.False(t, s.IsModerator(&models.User{Provider: "google", ProviderID: "4242"}))
	assert.False(t, s.IsModerator(&models.User{Provider: "github", ProviderID: "1"}))

	none := newTestUserService(config.ModeratorConfig{})
	assert.False(t, none.IsModerator(&models.User{}))
}

func TestAnonymousUsername(t *testing.T) {
	a := AnonymousUsername("github", "octocat")
	assert.Len(t, a, 14)
	assert.Equal(t, a, AnonymousUsername("github", "octocat"))
	assert.NotEqual(t, a, AnonymousUsername("google", "octocat"))
	assert.NotContains(t, a, "octocat")
}

type fakeUsers struct{}

func (fakeUsers) Upsert(_ context.Context, user *models.User) error {
	user.ID = 11
	return nil
}

func (fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (fakeUsers) CountVotes(context.Context, int64) (int, error) { return 0, nil }

func (fakeUsers) RankedPhotos(context.Context, int64) ([]models.LeaderboardEntry, error) {
	return nil, nil
}

type fakeMigrator struct {
	moved int
	err   error
}

func (m fakeMigrator) MigrateGuestVotes(context.Context, string, int64) (int, error) {
	return m.moved, m.err
}

func TestLoginResetsGuestCounter(t *testing.T) {
	ctx := context.Background()
	profile := &Profile{Provider: "github", ID: "99", Login: "octocat"}
	jwtCfg := config.JWTConfig{Secret: "test-secret-0123456789", TTL: time.Hour}

	tests := []struct {
		name          string
		migrator      fakeMigrator
		wantMigrated  int
		wantRemaining int
	}{
		{"migrated", fakeMigrator{moved: 4}, 4, ratelimit.DefaultLimit},
		{"migration failed", fakeMigrator{err: errors.New("connection reset")}, 0, ratelimit.DefaultLimit - 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a guest session that spent four votes
			store := ranking.NewMemoryStore(ratelimit.DefaultWindow)
			t.Cleanup(store.Close)
			limiter := ratelimit.NewLimiter(ratelimit.DefaultPolicy(), store)
			token := uuid.NewString()
			for i := 0; i < 4; i++ {
				_, err := limiter.Record(ctx, token)
				require.NoError(t, err)
			}

			// When the guest signs in
			s := NewUserService(fakeUsers{}, tt.migrator, limiter, jwtCfg, config.ModeratorConfig{})
			result, err := s.Login(ctx, profile, token)

			// Then the counter is reset only if the votes moved
			require.NoError(t, err)
			assert.Equal(t, tt.wantMigrated, result.MigratedVotes)
			assert.NotEmpty(t, result.Token)
			remaining, err := limiter.Remaining(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemaining, remaining)
		})
	}
}
