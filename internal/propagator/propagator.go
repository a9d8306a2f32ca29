// Package propagator turns device mutation records into proactive Alexa
// ChangeReport and DeleteReport events for the hub owner's account.
package propagator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/lms-io/alexa-slidebolt/internal/device"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/metrics"
	"github.com/lms-io/alexa-slidebolt/internal/stream"
)

// Logger defines the logging interface used by the Propagator.
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

// HubReader resolves a hub's owner.
type HubReader interface {
	Get(ctx context.Context, id string) (*hub.Hub, error)
}

// TokenSource hands out access tokens. *alexa.TokenManager implements it.
type TokenSource interface {
	GetValidToken(ctx context.Context, identityID string) (string, bool)
}

// Reporter posts proactive events. *alexa.EventGateway implements it.
type Reporter interface {
	SendChangeReport(ctx context.Context, token, endpointID string, properties []json.RawMessage) error
	SendDeleteReport(ctx context.Context, token string, endpointIDs []string) error
}

// Action is what a record calls for.
type Action int

const (
	ActionSkip Action = iota
	ActionChange
	ActionDelete
)

// Report kinds used as metric labels.
const (
	KindChange = "change"
	KindDelete = "delete"
)

// Classify decides what a record calls for. Removals and active to
// deleted transitions are deletes. Anything else whose state bytes did not
// change (a missing state counts as {}) is skipped, as are records of
// other kinds.
func Classify(r stream.Record) Action {
	if r.Kind != stream.KindDevice {
		return ActionSkip
	}
	if r.Op == stream.OpRemove {
		return ActionDelete
	}
	softDelete := r.OldStatus == string(device.StatusActive) && r.NewStatus == string(device.StatusDeleted)
	if softDelete {
		return ActionDelete
	}
	if bytes.Equal(orEmpty(r.OldState), orEmpty(r.NewState)) {
		return ActionSkip
	}
	return ActionChange
}

func orEmpty(state json.RawMessage) []byte {
	if len(state) == 0 {
		return []byte("{}")
	}
	return state
}

// Propagator reports device changes to Alexa. Every failure is logged and
// absorbed; each record is attempted once.
type Propagator struct {
	hubs     HubReader
	tokens   TokenSource
	reporter Reporter
	logger   Logger
}

// New creates a propagator.
func New(hubs HubReader, tokens TokenSource, reporter Reporter) *Propagator {
	return &Propagator{
		hubs:     hubs,
		tokens:   tokens,
		reporter: reporter,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the propagator.
func (p *Propagator) SetLogger(logger Logger) {
	p.logger = logger
}

// Deliver implements stream.Sink. It never fails, so the stream cursor
// always advances past the record.
func (p *Propagator) Deliver(ctx context.Context, r stream.Record) error {
	p.Handle(ctx, r)
	return nil
}

// Handle processes one record.
func (p *Propagator) Handle(ctx context.Context, r stream.Record) {
	action := Classify(r)
	kind := KindChange
	if action == ActionDelete {
		kind = KindDelete
	}
	if action == ActionSkip {
		p.logger.Debug("record skipped", "hub_id", r.HubID, "endpoint_id", r.EndpointID, "seq", r.Seq)
		return
	}

	h, err := p.hubs.Get(ctx, r.HubID)
	if err != nil {
		if !errors.Is(err, hub.ErrHubNotFound) {
			p.logger.Error("owner lookup failed", "hub_id", r.HubID, "error", err)
		}
		metrics.ProactiveReportsTotal.WithLabelValues(kind, metrics.ResultSkipped).Inc()
		return
	}
	if h.OwnerIdentity == "" {
		p.logger.Debug("hub has no owner, report skipped", "hub_id", r.HubID)
		metrics.ProactiveReportsTotal.WithLabelValues(kind, metrics.ResultSkipped).Inc()
		return
	}

	token, ok := p.tokens.GetValidToken(ctx, h.OwnerIdentity)
	if !ok {
		p.logger.Debug("no valid token, report skipped", "hub_id", r.HubID)
		metrics.ProactiveReportsTotal.WithLabelValues(kind, metrics.ResultSkipped).Inc()
		return
	}

	if action == ActionDelete {
		err = p.reporter.SendDeleteReport(ctx, token, []string{r.EndpointID})
	} else {
		err = p.reporter.SendChangeReport(ctx, token, r.EndpointID, device.StateProperties(r.NewState))
	}
	if err != nil {
		p.logger.Warn("proactive report failed", "kind", kind, "hub_id", r.HubID, "endpoint_id", r.EndpointID, "error", err)
		metrics.ProactiveReportsTotal.WithLabelValues(kind, metrics.ResultError).Inc()
		return
	}
	p.logger.Info("proactive report sent", "kind", kind, "hub_id", r.HubID, "endpoint_id", r.EndpointID)
	metrics.ProactiveReportsTotal.WithLabelValues(kind, metrics.ResultOK).Inc()
}
