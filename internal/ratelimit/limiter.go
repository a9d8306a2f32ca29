package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
)

// WindowLayout truncates a UTC time to its minute window key.
const WindowLayout = "2006-01-02T15:04"

// DefaultPerMinute applies when neither the hub nor config set a limit.
const DefaultPerMinute = 120

// Store atomically admits one message into a window.
type Store interface {
	// Increment adds one to (hubID, window) only while the current count
	// is below limit, and reports whether it did.
	Increment(ctx context.Context, hubID, window string, limit int, ttl time.Duration) (bool, error)
}

// Limiter applies fixed one-minute windows over a Store.
type Limiter struct {
	store        Store
	defaultLimit int
	ttl          time.Duration
	now          func() time.Time
}

// New creates a limiter from the relay.rate_limit config section.
func New(store Store, cfg config.HubRateLimitConfig) *Limiter {
	limit := cfg.DefaultPerMinute
	if limit <= 0 {
		limit = DefaultPerMinute
	}
	return &Limiter{
		store:        store,
		defaultLimit: limit,
		ttl:          cfg.WindowTTLDuration(),
		now:          time.Now,
	}
}

// WindowKey returns the window t falls into.
func WindowKey(t time.Time) string {
	return t.UTC().Format(WindowLayout)
}

// Allow admits one message for hubID. A limit of zero or less uses the
// configured default.
func (l *Limiter) Allow(ctx context.Context, hubID string, limit int) (bool, error) {
	if limit <= 0 {
		limit = l.defaultLimit
	}
	ok, err := l.store.Increment(ctx, hubID, WindowKey(l.now()), limit, l.ttl)
	if err != nil {
		return false, fmt.Errorf("rate check for hub %s: %w", hubID, err)
	}
	return ok, nil
}
