package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/auth"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
)

// Logger defines the logging interface used by the Manager.
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

// HubReader is the subset of hub.Repository registration needs.
type HubReader interface {
	Get(ctx context.Context, id string) (*hub.Hub, error)
}

// Closer terminates a live push connection.
type Closer interface {
	Close(handle string) error
}

// OrphanPurger removes devices of deleted hubs during a sweep.
type OrphanPurger interface {
	PurgeOrphans(ctx context.Context) (int64, error)
}

// Registration is the outcome of a successful Register.
type Registration struct {
	HubID        string
	MaxPerMinute int
}

// Options configures a Manager.
type Options struct {
	ConnectionTTL       time.Duration
	SweepInterval       time.Duration
	DefaultMaxPerMinute int
}

// Manager implements hub registration, identity resolution and
// disconnect cleanup.
type Manager struct {
	repo   Repository
	hubs   HubReader
	opts   Options
	logger Logger
	closer Closer
	purger OrphanPurger
	now    func() time.Time
}

// NewManager creates a session manager.
func NewManager(repo Repository, hubs HubReader, opts Options) *Manager {
	if opts.ConnectionTTL <= 0 {
		opts.ConnectionTTL = 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.DefaultMaxPerMinute <= 0 {
		opts.DefaultMaxPerMinute = hub.DefaultMaxMsgsPerMinute
	}
	return &Manager{
		repo:   repo,
		hubs:   hubs,
		opts:   opts,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetCloser lets Sweep close sockets whose session expired.
func (m *Manager) SetCloser(c Closer) {
	m.closer = c
}

// SetOrphanPurger lets Sweep garbage-collect devices of deleted hubs.
func (m *Manager) SetOrphanPurger(p OrphanPurger) {
	m.purger = p
}

// Register authenticates a hub and binds handle as its live connection.
// Checks run in order and stop at the first failure: secret present, hub
// known, hub active, secret matches.
func (m *Manager) Register(ctx context.Context, hubID, secret, handle string) (*Registration, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if hubID == "" {
		return nil, ErrUnknownHub
	}

	h, err := m.hubs.Get(ctx, hubID)
	if err != nil {
		if errors.Is(err, hub.ErrHubNotFound) {
			m.logger.Info("register rejected, unknown hub", "hub_id", hubID)
			return nil, ErrUnknownHub
		}
		return nil, fmt.Errorf("loading hub: %w", err)
	}

	if !h.IsActive() {
		m.logger.Info("register rejected, hub inactive", "hub_id", hubID, "status", h.Status)
		return nil, ErrHubInactive
	}

	ok, err := auth.VerifySecret(secret, h.SecretHash)
	if err != nil {
		m.logger.Warn("stored secret hash unreadable", "hub_id", hubID, "error", err)
	}
	if !ok {
		m.logger.Info("register rejected, wrong secret", "hub_id", hubID)
		return nil, ErrInvalidSecret
	}

	now := m.now()
	if err := m.repo.Put(ctx, Connection{
		HubID:        hubID,
		ConnectionID: handle,
		ConnectedAt:  now,
		ExpiresAt:    now.Add(m.opts.ConnectionTTL),
	}); err != nil {
		return nil, fmt.Errorf("recording connection: %w", err)
	}

	limit := h.MaxMsgsPerMinute
	if limit <= 0 {
		limit = m.opts.DefaultMaxPerMinute
	}
	m.logger.Info("hub registered", "hub_id", hubID, "connection_id", handle)
	return &Registration{HubID: hubID, MaxPerMinute: limit}, nil
}

// ResolveIdentity returns the hub bound to handle, or ErrUnauthorized.
// Store failures are wrapped so the caller can log them, but they must be
// treated as unauthorized too.
func (m *Manager) ResolveIdentity(ctx context.Context, handle string) (string, error) {
	if handle == "" {
		return "", ErrUnauthorized
	}
	hubID, err := m.repo.HubForConnection(ctx, handle, m.now())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return hubID, nil
}

// ConnectionFor returns the hub's live handle.
func (m *Manager) ConnectionFor(ctx context.Context, hubID string) (string, bool, error) {
	c, err := m.repo.ConnectionForHub(ctx, hubID, m.now())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return c.ConnectionID, true, nil
}

// Disconnect removes the session row and, if it still names this handle,
// the hub's connection row. Errors are logged only.
func (m *Manager) Disconnect(ctx context.Context, handle string) {
	hubID, err := m.repo.DeleteSession(ctx, handle)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error("disconnect cleanup failed", "connection_id", handle, "error", err)
		}
		return
	}

	removed, err := m.repo.DeleteConnectionIf(ctx, hubID, handle)
	if err != nil {
		m.logger.Error("disconnect cleanup failed", "connection_id", handle, "hub_id", hubID, "error", err)
		return
	}
	m.logger.Info("hub disconnected", "hub_id", hubID, "connection_id", handle, "connection_cleared", removed)
}

// Sweep closes sockets whose session expired, deletes expired rows and,
// when configured, orphaned devices.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	now := m.now()

	if m.closer != nil {
		handles, err := m.repo.ExpiredSessions(ctx, now)
		if err != nil {
			return 0, err
		}
		for _, h := range handles {
			if err := m.closer.Close(h); err != nil {
				m.logger.Debug("expired connection already closed", "connection_id", h)
			}
		}
	}

	n, err := m.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	if m.purger != nil {
		orphans, err := m.purger.PurgeOrphans(ctx)
		if err != nil {
			return n, fmt.Errorf("purging orphans: %w", err)
		}
		n += orphans
	}
	return n, nil
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("expired rows swept", "count", n)
			}
		}
	}
}
