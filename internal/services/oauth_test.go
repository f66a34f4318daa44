package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"photorank-backend/internal/config"
)

// providerServer fakes the token endpoint and the profile APIs of both providers.
func providerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		writeJSON(w, map[string]any{"access_token": "tok", "token_type": "bearer"})
	})
	mux.HandleFunc("/api/v3/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"id": 4242, "login": "octocat"})
	})
	mux.HandleFunc("/api/v3/user/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "cat@example.com", "primary": true, "verified": true},
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "g-1", "email": "g@example.com", "verified_email": true, "name": "Gopher"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthService(srv *httptest.Server) *OAuthService {
	s := NewOAuthService(config.OAuthConfig{
		RedirectBase: "https://api.example.com",
		Google:       config.ProviderConfig{ClientID: "gid", ClientSecret: "gsecret"},
		GitHub:       config.ProviderConfig{ClientID: "hid", ClientSecret: "hsecret"},
	})
	for _, oc := range s.providers {
		oc.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	}
	s.googleUserInfo = srv.URL + "/userinfo"
	s.githubBaseURL = srv.URL + "/"
	return s
}

func TestOAuthAuthCodeURL(t *testing.T) {
	s := NewOAuthService(config.OAuthConfig{
		RedirectBase: "https://api.example.com",
		GitHub:       config.ProviderConfig{ClientID: "hid", ClientSecret: "hsecret"},
	})

	raw, err := s.AuthCodeURL("github", "state-1")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "hid", u.Query().Get("client_id"))
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "https://api.example.com/api/v1/auth/callback/github", u.Query().Get("redirect_uri"))

	_, err = s.AuthCodeURL("google", "state-1")
	assert.ErrorIs(t, err, ErrUnknownProvider, "google is not configured")
}

func TestOAuthExchangeGitHub(t *testing.T) {
	s := testOAuthService(providerServer(t))

	p, err := s.Exchange(context.Background(), "github", "the-code")
	require.NoError(t, err)
	assert.Equal(t, &Profile{Provider: "github", ID: "4242", Login: "octocat", Email: "cat@example.com"}, p)
}

func TestOAuthExchangeGoogle(t *testing.T) {
	s := testOAuthService(providerServer(t))

	p, err := s.Exchange(context.Background(), "google", "the-code")
	require.NoError(t, err)
	assert.Equal(t, &Profile{Provider: "google", ID: "g-1", Login: "Gopher", Email: "g@example.com"}, p)
}

func TestOAuthExchangeUnknownProvider(t *testing.T) {
	s := testOAuthService(providerServer(t))
	_, err := s.Exchange(context.Background(), "myspace", "the-code")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
