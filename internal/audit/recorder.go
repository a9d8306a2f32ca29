package audit

import "context"

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes audit entries on behalf of handlers. A failed write is
// logged and never fails the audited operation.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record stores one admin action.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID, actor string, details map[string]any) {
	err := r.repo.Create(ctx, &Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Source:     SourceAdmin,
		Details:    details,
	})
	if err != nil {
		r.logger.Warn("audit write failed", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
