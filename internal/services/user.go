package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"photorank-backend/internal/config"
	"photorank-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// ErrInvalidToken is returned for malformed, expired or forged access tokens
var ErrInvalidToken = errors.New("invalid token")

// UserStore persists accounts
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	CountVotes(ctx context.Context, userID int64) (int, error)
	RankedPhotos(ctx context.Context, userID int64) ([]models.LeaderboardEntry, error)
}

// GuestMigrator moves a guest session's votes to an account
type GuestMigrator interface {
	MigrateGuestVotes(ctx context.Context, token string, userID int64) (int, error)
}

// CounterResetter clears a guest session's vote counter
type CounterResetter interface {
	Reset(ctx context.Context, token string) error
}

// UserService handles user-related business logic
type UserService struct {
	userRepo  UserStore
	guestRepo GuestMigrator
	counters  CounterResetter
	jwtSecret []byte
	jwtTTL    time.Duration
	moderator config.ModeratorConfig
}

// NewUserService creates a new user service. Guest votes are migrated on login
// when guestRepo is set, and the session's counter is then reset through counters.
func NewUserService(
	userRepo UserStore,
	guestRepo GuestMigrator,
	counters CounterResetter,
	jwtCfg config.JWTConfig,
	moderator config.ModeratorConfig,
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		guestRepo: guestRepo,
		counters:  counters,
		jwtSecret: []byte(jwtCfg.Secret),
		jwtTTL:    jwtCfg.TTL,
		moderator: moderator,
	}
}

// GenerateJWT generates an access token for a user
func (s *UserService) GenerateJWT(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     strconv.FormatInt(userID, 10),
		"user_id": userID,
		"exp":     now.Add(s.jwtTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates an access token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// IsModerator reports whether user is the configured site moderator
func (s *UserService) IsModerator(user *models.User) bool {
	return s.moderator.Provider != "" &&
		s.moderator.ProviderID != "" &&
		user.Provider == s.moderator.Provider &&
		user.ProviderID == s.moderator.ProviderID
}

// IsModeratorID loads the user and checks IsModerator
func (s *UserService) IsModeratorID(ctx context.Context, userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.IsModerator(user), nil
}

// Stats returns the user's photos with global rank and vote count
func (s *UserService) Stats(ctx context.Context, userID int64) (*models.UserStats, error) {
	photos, err := s.userRepo.RankedPhotos(ctx, userID)
	if err != nil {
		return nil, err
	}
	votes, err := s.userRepo.CountVotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if photos == nil {
		photos = []models.LeaderboardEntry{}
	}
	return &models.UserStats{Photos: photos, TotalPhotos: len(photos), TotalVotes: votes}, nil
}

// VoteCount returns how many votes the user has cast
func (s *UserService) VoteCount(ctx context.Context, userID int64) (int, error) {
	return s.userRepo.CountVotes(ctx, userID)
}

// LoginResult is returned after a successful OAuth login
type LoginResult struct {
	User          *models.User `json:"user"`
	Token         string       `json:"access_token"`
	MigratedVotes int          `json:"migrated_votes"`
}

// Login upserts the user behind an identity provider profile and issues an access token.
// Votes cast under guestToken are moved to the account.
func (s *UserService) Login(ctx context.Context, profile *Profile, guestToken string) (*LoginResult, error) {
	user := &models.User{
		Email:      profile.Email,
		Username:   AnonymousUsername(profile.Provider, profile.Login),
		Provider:   profile.Provider,
		ProviderID: profile.ID,
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{User: user, Token: token}
	if _, err := uuid.Parse(guestToken); err == nil && s.guestRepo != nil {
		migrated, err := s.guestRepo.MigrateGuestVotes(ctx, guestToken, user.ID)
		if err != nil {
			log.Warn().
				Err(err).
				Int64("user_id", user.ID).
				Msg("Failed to migrate guest votes")
		} else {
			result.MigratedVotes = migrated
			user.TotalVotes += migrated
			s.resetGuestCounter(ctx, guestToken, user.ID)
		}
	}

	log.Info().
		Int64("user_id", user.ID).
		Str("provider", user.Provider).
		Int("migrated_votes", result.MigratedVotes).
		Msg("User logged in")
	return result, nil
}

// resetGuestCounter drops the session's quota counter once its votes belong to the user
func (s *UserService) resetGuestCounter(ctx context.Context, token string, userID int64) {
	if s.counters == nil {
		return
	}
	if err := s.counters.Reset(ctx, token); err != nil {
		log.Warn().
			Err(err).
			Int64("user_id", userID).
			Msg("Failed to reset guest vote counter")
	}
}

// AnonymousUsername derives a stable public name that does not reveal the provider login
func AnonymousUsername(provider, login string) string {
	sum := blake2b.Sum256([]byte(provider + ":" + login))
	return "anon" + hex.EncodeToString(sum[:])[:10]
}
