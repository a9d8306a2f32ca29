package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/hub"
)

// Logger defines the logging interface used by the Resolver.
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

// HubClaimer is the subset of hub.Repository the claim flow needs.
type HubClaimer interface {
	GetByOwnerEmail(ctx context.Context, email string) (*hub.Hub, error)
	ClaimOwner(ctx context.Context, id, identityID string) error
}

// Resolver turns an authenticated profile into the hub it may control.
type Resolver struct {
	repo   Repository
	hubs   HubClaimer
	logger Logger
	now    func() time.Time
}

// NewResolver creates a claim resolver.
func NewResolver(repo Repository, hubs HubClaimer) *Resolver {
	return &Resolver{
		repo:   repo,
		hubs:   hubs,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve returns the hub mapped to the profile's identity, claiming the
// hub pre-assigned to the profile's email when no mapping exists yet.
//
// Returns ErrNoHubAssigned when nothing matches and ErrAlreadyClaimed when
// the matching hub belongs to another identity.
func (r *Resolver) Resolve(ctx context.Context, p Profile) (string, error) {
	if p.IdentityID == "" {
		return "", ErrInvalidIdentity
	}

	existing, err := r.repo.Get(ctx, p.IdentityID)
	if err != nil && !errors.Is(err, ErrMappingNotFound) {
		return "", err
	}
	if existing != nil && existing.Mapped() {
		r.touch(ctx, existing, p.Email)
		return existing.HubID, nil
	}

	if p.Email == "" {
		r.logger.Warn("identity unmapped and no email", "identity_id", p.IdentityID)
		return "", ErrNoHubAssigned
	}

	h, err := r.hubs.GetByOwnerEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, hub.ErrHubNotFound) {
			r.logger.Warn("identity unmapped", "identity_id", p.IdentityID)
			return "", ErrNoHubAssigned
		}
		return "", fmt.Errorf("looking up hub by email: %w", err)
	}

	switch h.OwnerIdentity {
	case "":
		if err := r.hubs.ClaimOwner(ctx, h.ID, p.IdentityID); err != nil {
			if errors.Is(err, hub.ErrAlreadyClaimed) {
				r.logger.Warn("claim race lost", "hub_id", h.ID, "identity_id", p.IdentityID)
				return "", ErrAlreadyClaimed
			}
			return "", fmt.Errorf("claiming hub: %w", err)
		}
		r.logger.Info("hub claimed", "hub_id", h.ID, "identity_id", p.IdentityID)
	case p.IdentityID:
		r.logger.Info("claim recovered", "hub_id", h.ID, "identity_id", p.IdentityID)
	default:
		r.logger.Warn("claim denied, hub owned by another identity", "hub_id", h.ID, "identity_id", p.IdentityID)
		return "", ErrAlreadyClaimed
	}

	if err := r.repo.PutMapping(ctx, p.IdentityID, h.ID, p.Email, r.now()); err != nil {
		return "", err
	}
	return h.ID, nil
}

// touch records a changed email. Failures are logged only.
func (r *Resolver) touch(ctx context.Context, i *Identity, email string) {
	if email == "" || email == i.Email {
		return
	}
	if err := r.repo.Touch(ctx, i.ID, email, r.now()); err != nil {
		r.logger.Warn("identity touch failed", "identity_id", i.ID, "error", err)
	}
}
