package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lms-io/alexa-slidebolt/internal/device"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/metrics"
	"github.com/lms-io/alexa-slidebolt/internal/push"
	"github.com/lms-io/alexa-slidebolt/internal/session"
)

// Logger defines the logging interface used by the Dispatcher.
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

// Sessions authenticates hubs and resolves connections to them.
// *session.Manager implements it.
type Sessions interface {
	Register(ctx context.Context, hubID, secret, handle string) (*session.Registration, error)
	ResolveIdentity(ctx context.Context, handle string) (string, error)
	Disconnect(ctx context.Context, handle string)
}

// Devices is the device lifecycle surface. *device.Registry implements it.
type Devices interface {
	Upsert(ctx context.Context, hubID string, endpoint, state json.RawMessage) (string, error)
	UpdateState(ctx context.Context, hubID, endpointID string, state json.RawMessage) error
	List(ctx context.Context, hubID string) ([]device.Device, error)
	ListDeleted(ctx context.Context, hubID string) ([]device.Device, error)
	Delete(ctx context.Context, hubID, endpointID string) error
	MarkDeleted(ctx context.Context, hubID string, endpointIDs []string) []device.MarkResult
	HardPurge(ctx context.Context, hubID string) (int, error)
}

// HubReader loads hub metadata for limits and ownership.
type HubReader interface {
	Get(ctx context.Context, id string) (*hub.Hub, error)
}

// RateLimiter admits messages per hub. *ratelimit.Limiter implements it.
type RateLimiter interface {
	Allow(ctx context.Context, hubID string, limit int) (bool, error)
}

// TokenSource hands out the owner's Alexa token. *alexa.TokenManager
// implements it.
type TokenSource interface {
	GetValidToken(ctx context.Context, identityID string) (string, bool)
}

// DeleteReporter sends DeleteReports. *alexa.EventGateway implements it.
type DeleteReporter interface {
	SendDeleteReport(ctx context.Context, token string, endpointIDs []string) error
}

// EventRecorder receives one event per handled frame. The InfluxDB client
// implements it.
type EventRecorder interface {
	WriteRelayEvent(kind, action, result string)
}

// Deps groups the dispatcher's collaborators.
type Deps struct {
	Sessions Sessions
	Devices  Devices
	Hubs     HubReader
	Limiter  RateLimiter
	Tokens   TokenSource
	Reports  DeleteReporter
	Sender   push.Sender
}

type actionFunc func(ctx context.Context, hubID string, msg *Message) (reply, int, error)

// Dispatcher routes hub frames to their action handlers.
type Dispatcher struct {
	deps     Deps
	logger   Logger
	recorder EventRecorder
	actions  map[string]actionFunc
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		deps:   deps,
		logger: noopLogger{},
	}
	d.actions = map[string]actionFunc{
		ActionStateUpdate:  d.stateUpdate,
		ActionDeviceUpsert: d.deviceUpsert,
		ActionListDevices:  d.listDevices,
		ActionDeleteDevice: d.deleteDevice,
		ActionMarkDeleted:  d.markDeleted,
		ActionHardPurge:    d.hardPurge,
		ActionRetryDeleted: d.retryDeleted,
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetEventRecorder sets an optional per-frame event sink.
func (d *Dispatcher) SetEventRecorder(r EventRecorder) {
	d.recorder = r
}

// HandleMessage implements push.MessageHandler.
func (d *Dispatcher) HandleMessage(ctx context.Context, handle string, data []byte) {
	d.Handle(ctx, handle, data)
}

// HandleDisconnect implements push.MessageHandler.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, handle string) {
	d.deps.Sessions.Disconnect(ctx, handle)
}

// Handle processes one frame from handle and pushes the reply to it.
func (d *Dispatcher) Handle(ctx context.Context, handle string, raw []byte) Result {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.send(handle, errorReply(msgInvalidJSON))
		return d.finish("invalid", metrics.ResultError, http.StatusBadRequest)
	}
	action := CanonicalAction(msg.Action)

	if action == ActionRegister {
		return d.register(ctx, handle, &msg)
	}

	hubID, err := d.deps.Sessions.ResolveIdentity(ctx, handle)
	if err != nil {
		if !errors.Is(err, session.ErrUnauthorized) {
			d.logger.Error("session lookup failed", "connection_id", handle, "error", err)
		}
		d.logger.Warn("unauthenticated hub message", "connection_id", handle, "action", msg.Action)
		d.send(handle, errorReply(msgUnauthorized))
		return d.finish(metricAction(action), metrics.ResultDenied, http.StatusForbidden)
	}

	if body := msg.Hub(); body != "" && body != hubID {
		d.logger.Warn("spoofed hub id blocked", "connection_id", handle, "hub_id", hubID, "body_hub_id", body)
		d.send(handle, errorReply(msgUnauthorized))
		return d.finish(metricAction(action), metrics.ResultDenied, http.StatusForbidden)
	}

	if !d.allow(ctx, hubID) {
		metrics.RateLimitedTotal.Inc()
		d.logger.Warn("hub throttled", "hub_id", hubID)
		d.send(handle, errorReply(msgRateLimited))
		return d.finish(metricAction(action), metrics.ResultDenied, http.StatusTooManyRequests)
	}

	fn, ok := d.actions[action]
	if !ok {
		d.send(handle, errorReply("Unknown action: "+msg.Action))
		return d.finish("unknown", metrics.ResultError, http.StatusBadRequest)
	}

	d.logger.Debug("hub message", "hub_id", hubID, "action", action)
	resp, status, err := fn(ctx, hubID, &msg)
	if err != nil {
		d.logger.Error("hub action failed", "hub_id", hubID, "action", action, "error", err)
		d.send(handle, errorReply(msgInternal))
		return d.finish(action, metrics.ResultError, http.StatusInternalServerError)
	}
	d.send(handle, resp)

	result := metrics.ResultOK
	if _, failed := resp["error"]; failed {
		result = metrics.ResultError
	}
	return d.finish(action, result, status)
}

func (d *Dispatcher) register(ctx context.Context, handle string, msg *Message) Result {
	reg, err := d.deps.Sessions.Register(ctx, msg.Hub(), msg.Secret, handle)
	if err != nil {
		status := http.StatusForbidden
		var text string
		switch {
		case errors.Is(err, session.ErrMissingSecret):
			text, status = msgMissingSecret, http.StatusBadRequest
		case errors.Is(err, session.ErrUnknownHub):
			text = msgInvalidClient
		case errors.Is(err, session.ErrHubInactive):
			text = msgClientInactive
		case errors.Is(err, session.ErrInvalidSecret):
			text = msgInvalidSecret
		default:
			d.logger.Error("register failed", "hub_id", msg.Hub(), "error", err)
			text, status = msgInternal, http.StatusInternalServerError
		}
		d.send(handle, errorReply(text))
		return d.finish(ActionRegister, metrics.ResultDenied, status)
	}

	d.send(handle, reply{
		"status":    "ok",
		"rateLimit": reply{"maxPerMinute": reg.MaxPerMinute},
	})

	inventory, _, err := d.listDevices(ctx, reg.HubID, msg)
	if err != nil {
		d.logger.Error("inventory after register failed", "hub_id", reg.HubID, "error", err)
		d.send(handle, errorReply(msgInternal))
		return d.finish(ActionRegister, metrics.ResultError, http.StatusInternalServerError)
	}
	d.send(handle, inventory)
	return d.finish(ActionRegister, metrics.ResultOK, http.StatusOK)
}

// allow runs the rate check. A failing check lets the message through.
func (d *Dispatcher) allow(ctx context.Context, hubID string) bool {
	limit := 0
	h, err := d.deps.Hubs.Get(ctx, hubID)
	switch {
	case err == nil:
		limit = h.MaxMsgsPerMinute
	case !errors.Is(err, hub.ErrHubNotFound):
		d.logger.Warn("hub lookup for rate limit failed", "hub_id", hubID, "error", err)
	}

	ok, err := d.deps.Limiter.Allow(ctx, hubID, limit)
	if err != nil {
		d.logger.Error("rate limit check failed", "hub_id", hubID, "error", err)
		return true
	}
	return ok
}

func (d *Dispatcher) send(handle string, r reply) {
	if err := d.deps.Sender.Send(handle, r); err != nil {
		d.logger.Warn("hub reply failed", "connection_id", handle, "error", err)
	}
}

func (d *Dispatcher) finish(action, result string, status int) Result {
	metrics.HubMessagesTotal.WithLabelValues(action, result).Inc()
	if d.recorder != nil {
		d.recorder.WriteRelayEvent("hub", action, result)
	}
	return Result{StatusCode: status}
}

// metricAction keeps unknown actions out of metric labels.
func metricAction(action string) string {
	if _, ok := knownActions[action]; ok {
		return action
	}
	return "unknown"
}

var knownActions = map[string]struct{}{
	ActionStateUpdate:  {},
	ActionDeviceUpsert: {},
	ActionListDevices:  {},
	ActionDeleteDevice: {},
	ActionMarkDeleted:  {},
	ActionHardPurge:    {},
	ActionRetryDeleted: {},
}

// wrap adds the action name to a store error.
func wrap(action string, err error) error {
	return fmt.Errorf("%s: %w", action, err)
}
