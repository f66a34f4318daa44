package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"photorank-backend/internal/middleware"
	"photorank-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

// AuthHandler runs the OAuth login flow
type AuthHandler struct {
	oauth       *services.OAuthService
	userService *services.UserService
	frontendURL string
	secure      bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(oauth *services.OAuthService, userService *services.UserService, frontendURL string, secure bool) *AuthHandler {
	return &AuthHandler{
		oauth:       oauth,
		userService: userService,
		frontendURL: frontendURL,
		secure:      secure,
	}
}

// Login handles GET /api/v1/auth/login/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := randomState()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate OAuth state")
		respondError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	authURL, err := h.oauth.AuthCodeURL(provider, state)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/v1/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /api/v1/auth/callback/{provider}
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	ctx := r.Context()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		respondError(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/v1/auth", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, "code is required", http.StatusBadRequest)
		return
	}

	profile, err := h.oauth.Exchange(ctx, provider, code)
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("OAuth exchange failed")
		respondError(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	result, err := h.userService.Login(ctx, profile, middleware.GuestToken(r))
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("Failed to log in user")
		respondServiceError(w, err)
		return
	}

	if h.frontendURL == "" {
		respondJSON(w, result, http.StatusOK)
		return
	}
	target := h.frontendURL + "/auth/capture?token=" + url.QueryEscape(result.Token)
	http.Redirect(w, r, target, http.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
