package alexa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/identity"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
)

// DefaultTimeout bounds outbound calls when none is configured.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 512

// NewHTTPClient returns the client shared by every outbound call.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// ProfileClient resolves bearer tokens through the LWA profile endpoint.
type ProfileClient struct {
	url  string
	http *http.Client
}

// NewProfileClient creates a profile client.
func NewProfileClient(profileURL string, httpClient *http.Client) *ProfileClient {
	return &ProfileClient{url: profileURL, http: httpClient}
}

// Profile returns the identity behind token.
func (c *ProfileClient) Profile(ctx context.Context, token string) (identity.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return identity.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("%w: profile: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, "profile"); err != nil {
		return identity.Profile{}, err
	}

	var body struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return identity.Profile{}, fmt.Errorf("%w: decoding profile: %w", ErrUpstream, err)
	}
	if body.UserID == "" {
		return identity.Profile{}, ErrInvalidProfile
	}
	return identity.Profile{IdentityID: body.UserID, Email: body.Email}, nil
}

// TokenResponse is the LWA token endpoint reply.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Tokens converts the reply into stored tokens relative to now.
func (t *TokenResponse) Tokens(now time.Time) identity.Tokens {
	return identity.Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(t.ExpiresIn) * time.Second),
	}
}

// LWAClient performs Login-with-Amazon OAuth grants.
type LWAClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client
}

// NewLWAClient creates an LWA client from the alexa config section.
func NewLWAClient(cfg config.AlexaConfig, httpClient *http.Client) *LWAClient {
	return &LWAClient{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         httpClient,
	}
}

// Exchange trades an authorization code for tokens.
func (c *LWAClient) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	return c.grant(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	})
}

// Refresh trades a refresh token for a new access token.
func (c *LWAClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.grant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *LWAClient) grant(ctx context.Context, form url.Values) (*TokenResponse, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrMissingCredentials
	}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token grant: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, "token grant"); err != nil {
		return nil, err
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decoding token grant: %w", ErrUpstream, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: token grant returned no access token", ErrUpstream)
	}
	return &tr, nil
}

// checkStatus turns a non-2xx reply into ErrUpstream with a body excerpt.
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, op, resp.StatusCode, strings.TrimSpace(string(body)))
}
