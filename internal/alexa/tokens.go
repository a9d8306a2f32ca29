package alexa

import (
	"context"
	"errors"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/identity"
)

// RefreshSkew is how long before expiry a token is refreshed.
const RefreshSkew = 5 * time.Minute

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TokenStore is the subset of identity.Repository token handling needs.
type TokenStore interface {
	Get(ctx context.Context, id string) (*identity.Identity, error)
	SaveTokens(ctx context.Context, id string, tokens identity.Tokens) error
}

// Granter performs OAuth grants. *LWAClient implements it.
type Granter interface {
	Exchange(ctx context.Context, code string) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// TokenManager hands out valid access tokens for identities.
type TokenManager struct {
	store   TokenStore
	granter Granter
	logger  Logger
	now     func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(store TokenStore, granter Granter) *TokenManager {
	return &TokenManager{
		store:   store,
		granter: granter,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the token manager.
func (m *TokenManager) SetLogger(logger Logger) {
	m.logger = logger
}

// GetValidToken returns a usable access token for identityID, refreshing
// and persisting it when it is within RefreshSkew of expiry. ok is false
// on any failure.
func (m *TokenManager) GetValidToken(ctx context.Context, identityID string) (token string, ok bool) {
	i, err := m.store.Get(ctx, identityID)
	if err != nil {
		if !errors.Is(err, identity.ErrMappingNotFound) {
			m.logger.Error("token lookup failed", "identity_id", identityID, "error", err)
		}
		return "", false
	}
	if i.Tokens.RefreshToken == "" {
		m.logger.Debug("no refresh token", "identity_id", identityID)
		return "", false
	}

	now := m.now()
	if i.Tokens.AccessToken != "" && now.Before(i.Tokens.ExpiresAt.Add(-RefreshSkew)) {
		return i.Tokens.AccessToken, true
	}

	tr, err := m.granter.Refresh(ctx, i.Tokens.RefreshToken)
	if err != nil {
		m.logger.Error("token refresh failed", "identity_id", identityID, "error", err)
		return "", false
	}
	tokens := tr.Tokens(now)
	if err := m.store.SaveTokens(ctx, identityID, tokens); err != nil {
		m.logger.Error("storing refreshed token failed", "identity_id", identityID, "error", err)
		return "", false
	}
	m.logger.Info("token refreshed", "identity_id", identityID)
	return tokens.AccessToken, true
}

// AcceptGrant exchanges code and stores the tokens. It never fails the
// caller; problems are logged.
func (m *TokenManager) AcceptGrant(ctx context.Context, identityID, code string) {
	if code == "" {
		m.logger.Error("accept grant without code", "identity_id", identityID)
		return
	}
	tr, err := m.granter.Exchange(ctx, code)
	if err != nil {
		m.logger.Error("accept grant exchange failed", "identity_id", identityID, "error", err)
		return
	}
	if err := m.store.SaveTokens(ctx, identityID, tr.Tokens(m.now())); err != nil {
		m.logger.Error("storing granted tokens failed", "identity_id", identityID, "error", err)
		return
	}
	m.logger.Info("accept grant stored tokens", "identity_id", identityID)
}
