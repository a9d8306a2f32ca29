package stream

import (
	"context"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
)

// Sink accepts records in seq order. An error stops the batch; the
// record is retried on the next poll.
type Sink interface {
	Deliver(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Record) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, r Record) error {
	return f(ctx, r)
}

// Logger defines the logging interface used by the Poller.
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

// DefaultCursor names the relay's single changelog consumer.
const DefaultCursor = "propagator"

// Poller moves changelog records to a Sink.
type Poller struct {
	log       *Changelog
	sink      Sink
	name      string
	interval  time.Duration
	batchSize int
	retention time.Duration
	logger    Logger
	now       func() time.Time
}

// NewPoller creates a poller for the named cursor.
func NewPoller(log *Changelog, sink Sink, name string, cfg config.StreamConfig) *Poller {
	if name == "" {
		name = DefaultCursor
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Poller{
		log:       log,
		sink:      sink,
		name:      name,
		interval:  cfg.PollIntervalDuration(),
		batchSize: batch,
		retention: cfg.RetentionDuration(),
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// PollOnce delivers one batch and returns how many records were accepted.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	cursor, err := p.log.Cursor(ctx, p.name)
	if err != nil {
		return 0, err
	}
	records, err := p.log.Read(ctx, cursor, p.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	last := cursor
	for _, r := range records {
		if err := p.sink.Deliver(ctx, r); err != nil {
			p.logger.Warn("stream delivery failed, will retry", "seq", r.Seq, "error", err)
			break
		}
		last = r.Seq
		delivered++
	}

	if last != cursor {
		if err := p.log.SaveCursor(ctx, p.name, last); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

// Prune removes delivered records older than the retention period.
func (p *Poller) Prune(ctx context.Context) (int64, error) {
	cursor, err := p.log.Cursor(ctx, p.name)
	if err != nil {
		return 0, err
	}
	return p.log.Prune(ctx, cursor, p.now().Add(-p.retention))
}

// Run polls until ctx is cancelled. A full batch is followed immediately
// by another poll.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	pruneEvery := time.NewTicker(time.Hour)
	defer pruneEvery.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pruneEvery.C:
			if n, err := p.Prune(ctx); err != nil {
				p.logger.Error("changelog prune failed", "error", err)
			} else if n > 0 {
				p.logger.Debug("changelog pruned", "count", n)
			}
		case <-ticker.C:
			for {
				n, err := p.PollOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Error("changelog poll failed", "error", err)
					}
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}
