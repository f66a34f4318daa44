package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"photorank-backend/internal/config"

	"github.com/google/go-github/v59/github"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// ErrUnknownProvider is returned for providers that are not configured
var ErrUnknownProvider = errors.New("unknown login provider")

// Profile is the identity returned by a login provider
type Profile struct {
	Provider string
	ID       string
	Login    string
	Email    string
}

// OAuthService drives the authorization code flow against Google and GitHub
type OAuthService struct {
	providers map[string]*oauth2.Config
	// googleUserInfo is overridable in tests.
	googleUserInfo string
	githubBaseURL  string
}

// NewOAuthService creates a service for every provider with a client ID
func NewOAuthService(cfg config.OAuthConfig) *OAuthService {
	s := &OAuthService{
		providers:      make(map[string]*oauth2.Config),
		googleUserInfo: googleUserInfoURL,
	}
	if cfg.Google.Enabled() {
		s.providers["google"] = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  cfg.RedirectBase + "/api/v1/auth/callback/google",
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	if cfg.GitHub.Enabled() {
		s.providers["github"] = &oauth2.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			Endpoint:     endpoints.GitHub,
			RedirectURL:  cfg.RedirectBase + "/api/v1/auth/callback/github",
			Scopes:       []string{"read:user", "user:email"},
		}
	}
	return s
}

// AuthCodeURL returns the provider consent page URL
func (s *OAuthService) AuthCodeURL(provider, state string) (string, error) {
	oc, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return oc.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange trades an authorization code for the user's profile
func (s *OAuthService) Exchange(ctx context.Context, provider, code string) (*Profile, error) {
	oc, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	client := oc.Client(ctx, tok)

	switch provider {
	case "github":
		return s.githubProfile(ctx, client)
	case "google":
		return s.googleProfile(ctx, client)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

func (s *OAuthService) githubProfile(ctx context.Context, httpClient *http.Client) (*Profile, error) {
	gh := github.NewClient(httpClient)
	if s.githubBaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(s.githubBaseURL, s.githubBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure github client: %w", err)
		}
	}

	user, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get github user: %w", err)
	}

	emails, _, err := gh.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to get github emails: %w", err)
	}
	var email string
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			email = e.GetEmail()
			break
		}
	}
	if email == "" {
		return nil, errors.New("github account has no verified primary email")
	}

	return &Profile{
		Provider: "github",
		ID:       strconv.FormatInt(user.GetID(), 10),
		Login:    user.GetLogin(),
		Email:    email,
	}, nil
}

func (s *OAuthService) googleProfile(ctx context.Context, httpClient *http.Client) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.googleUserInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get google user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned %s", resp.Status)
	}

	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode google user: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, errors.New("google profile is missing id or email")
	}

	return &Profile{Provider: "google", ID: info.ID, Login: info.Name, Email: info.Email}, nil
}
