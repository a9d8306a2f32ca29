package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateObserver receives every state document written to the registry.
// Implementations must not block.
type StateObserver interface {
	WriteDeviceState(hubID, endpointID string, state json.RawMessage)
}

// Registry is the device lifecycle service over a Repository.
//
// All public methods are safe for concurrent use.
type Registry struct {
	repo     Repository
	logger   Logger
	observer StateObserver
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetStateObserver sets the sink that sees every state write.
func (r *Registry) SetStateObserver(observer StateObserver) {
	r.observer = observer
}

// Upsert creates or merges a device from its endpoint descriptor. The
// descriptor must carry endpointId. A nil state is left untouched;
// first_seen and an existing status are preserved.
func (r *Registry) Upsert(ctx context.Context, hubID string, endpoint, state json.RawMessage) (string, error) {
	endpointID, err := EndpointID(endpoint)
	if err != nil {
		return "", err
	}

	var compact json.RawMessage
	if len(state) > 0 && string(state) != "null" {
		if compact, err = CompactState(state); err != nil {
			return "", err
		}
	}

	if err := r.repo.Upsert(ctx, hubID, endpointID, endpoint, compact); err != nil {
		return "", err
	}
	r.logger.Debug("device upserted", "hub_id", hubID, "endpoint_id", endpointID, "with_state", compact != nil)
	r.observe(hubID, endpointID, compact)
	return endpointID, nil
}

// UpdateState stores a new state document for one device. A first update
// before any upsert creates a minimal row with status new.
func (r *Registry) UpdateState(ctx context.Context, hubID, endpointID string, state json.RawMessage) error {
	if endpointID == "" {
		return ErrInvalidEndpoint
	}
	compact, err := CompactState(state)
	if err != nil {
		return err
	}

	if err := r.repo.UpdateState(ctx, hubID, endpointID, compact); err != nil {
		return err
	}
	r.logger.Debug("device state updated", "hub_id", hubID, "endpoint_id", endpointID)
	r.observe(hubID, endpointID, compact)
	return nil
}

// List returns every device of the hub, including soft-deleted ones.
// Callers must not rely on the order.
func (r *Registry) List(ctx context.Context, hubID string) ([]Device, error) {
	return r.repo.List(ctx, hubID)
}

// ListDeleted returns the hub's soft-deleted devices.
func (r *Registry) ListDeleted(ctx context.Context, hubID string) ([]Device, error) {
	return r.repo.ListByStatus(ctx, hubID, StatusDeleted)
}

// Get returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(ctx context.Context, hubID, endpointID string) (*Device, error) {
	return r.repo.Get(ctx, hubID, endpointID)
}

// Delete hard-deletes one device.
func (r *Registry) Delete(ctx context.Context, hubID, endpointID string) error {
	if err := r.repo.Delete(ctx, hubID, endpointID); err != nil {
		return err
	}
	r.logger.Info("device deleted", "hub_id", hubID, "endpoint_id", endpointID)
	return nil
}

// MarkDeleted soft-deletes each id independently. A failure for one id
// is reported in its result and does not stop the rest.
func (r *Registry) MarkDeleted(ctx context.Context, hubID string, endpointIDs []string) []MarkResult {
	results := make([]MarkResult, 0, len(endpointIDs))
	for _, id := range endpointIDs {
		err := r.transition(ctx, hubID, id, StatusDeleted)
		switch {
		case err == nil:
			results = append(results, MarkResult{ID: id, OK: true})
		case errors.Is(err, ErrDeviceNotFound):
			results = append(results, MarkResult{ID: id, Error: "not found"})
		default:
			r.logger.Error("mark deleted failed", "hub_id", hubID, "endpoint_id", id, "error", err)
			results = append(results, MarkResult{ID: id, Error: err.Error()})
		}
	}
	r.logger.Info("devices marked deleted", "hub_id", hubID, "count", len(endpointIDs))
	return results
}

// HardPurge removes the hub's soft-deleted rows one by one and returns
// how many went. Calling it with nothing deleted is a no-op.
func (r *Registry) HardPurge(ctx context.Context, hubID string) (int, error) {
	deleted, err := r.repo.ListByStatus(ctx, hubID, StatusDeleted)
	if err != nil {
		return 0, fmt.Errorf("listing deleted devices: %w", err)
	}

	count := 0
	for _, d := range deleted {
		removed, err := r.repo.DeleteIfDeleted(ctx, hubID, d.EndpointID)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	if count > 0 {
		r.logger.Info("deleted devices purged", "hub_id", hubID, "count", count)
	}
	return count, nil
}

// MarkActive flips an existing device to active. It is a heartbeat on
// successful Alexa contact, so failures are logged and dropped.
func (r *Registry) MarkActive(ctx context.Context, hubID, endpointID string) {
	err := r.transition(ctx, hubID, endpointID, StatusActive)
	switch {
	case err == nil:
	case errors.Is(err, ErrDeviceNotFound):
		r.logger.Debug("mark active skipped, device absent", "hub_id", hubID, "endpoint_id", endpointID)
	default:
		r.logger.Warn("mark active failed", "hub_id", hubID, "endpoint_id", endpointID, "error", err)
	}
}

// PurgeOrphans removes devices left behind by deleted hubs.
func (r *Registry) PurgeOrphans(ctx context.Context) (int64, error) {
	n, err := r.repo.PurgeOrphans(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("orphaned devices purged", "count", n)
	}
	return n, nil
}

// transition applies a status change allowed by Status.CanTransition as a
// single conditional write.
func (r *Registry) transition(ctx context.Context, hubID, endpointID string, next Status) error {
	var from []Status
	for _, s := range []Status{StatusNew, StatusActive, StatusDeleted} {
		if s != next && s.CanTransition(next) {
			from = append(from, s)
		}
	}

	changed, err := r.repo.SetStatusIf(ctx, hubID, endpointID, next, from)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}

	current, err := r.repo.Get(ctx, hubID, endpointID)
	if err != nil {
		return err
	}
	if current.Status == next {
		return nil
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
}

func (r *Registry) observe(hubID, endpointID string, state json.RawMessage) {
	if r.observer != nil && len(state) > 0 {
		r.observer.WriteDeviceState(hubID, endpointID, state)
	}
}
