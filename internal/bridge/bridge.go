package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/alexa"
	"github.com/lms-io/alexa-slidebolt/internal/device"
	"github.com/lms-io/alexa-slidebolt/internal/identity"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/metrics"
	"github.com/lms-io/alexa-slidebolt/internal/push"
)

// testTokenPrefix marks "user-<id>|<email>" tokens.
const testTokenPrefix = "user-"

// asyncTimeout bounds fire-and-forget reports.
const asyncTimeout = 10 * time.Second

// Logger defines the logging interface used by the Bridge.
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

// Profiler resolves bearer tokens. *alexa.ProfileClient implements it.
type Profiler interface {
	Profile(ctx context.Context, token string) (identity.Profile, error)
}

// ClaimResolver maps a profile to a hub. *identity.Resolver implements it.
type ClaimResolver interface {
	Resolve(ctx context.Context, p identity.Profile) (string, error)
}

// Devices is the subset of *device.Registry the bridge reads.
type Devices interface {
	List(ctx context.Context, hubID string) ([]device.Device, error)
	Get(ctx context.Context, hubID, endpointID string) (*device.Device, error)
	MarkActive(ctx context.Context, hubID, endpointID string)
}

// Connections finds a hub's live push handle. *session.Manager implements it.
type Connections interface {
	ConnectionFor(ctx context.Context, hubID string) (string, bool, error)
}

// Granter stores tokens from an AcceptGrant. *alexa.TokenManager implements it.
type Granter interface {
	AcceptGrant(ctx context.Context, identityID, code string)
}

// DeleteReporter sends DeleteReports. *alexa.EventGateway implements it.
type DeleteReporter interface {
	SendDeleteReport(ctx context.Context, token string, endpointIDs []string) error
}

// Deps groups the bridge's collaborators.
type Deps struct {
	Profiles    Profiler
	Claims      ClaimResolver
	Devices     Devices
	Connections Connections
	Sender      push.Sender
	Tokens      Granter
	Reports     DeleteReporter
}

// Bridge dispatches directives.
type Bridge struct {
	deps            Deps
	allowTestTokens bool
	logger          Logger
	now             func() time.Time
	wg              sync.WaitGroup
}

// New creates a bridge. allowTestTokens enables "user-<id>|<email>"
// bearer tokens that skip the profile lookup.
func New(deps Deps, allowTestTokens bool) *Bridge {
	return &Bridge{
		deps:            deps,
		allowTestTokens: allowTestTokens,
		logger:          noopLogger{},
		now:             time.Now,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Wait blocks until background reports started by Handle finish.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Handle answers one directive envelope.
func (b *Bridge) Handle(ctx context.Context, raw []byte) *alexa.Response {
	var env struct {
		Directive json.RawMessage `json:"directive"`
	}
	var d alexa.Directive
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Directive) == 0 || json.Unmarshal(env.Directive, &d) != nil {
		return b.count("", alexa.NewErrorResponse(alexa.ErrTypeInvalidDirective, "Malformed directive", ""))
	}
	if d.Header.Namespace == "" || d.Header.Name == "" {
		return b.count("", alexa.NewErrorResponse(alexa.ErrTypeInvalidDirective, "Missing directive header", d.Header.CorrelationToken))
	}
	return b.count(d.Header.Namespace, b.dispatch(ctx, &d, env.Directive))
}

func (b *Bridge) dispatch(ctx context.Context, d *alexa.Directive, rawDirective json.RawMessage) *alexa.Response {
	corr := d.Header.CorrelationToken

	token := d.BearerToken()
	if token == "" {
		return alexa.NewErrorResponse(alexa.ErrTypeInvalidAuthorization, "Missing bearer token", corr)
	}

	profile, err := b.profile(ctx, token)
	if err != nil {
		b.logger.Info("directive rejected, profile lookup failed", "directive", d.Kind(), "error", err)
		return alexa.NewErrorResponse(alexa.ErrTypeInvalidAuthorization, "Invalid token", corr)
	}

	if d.Header.Namespace == alexa.NamespaceAuthorization && d.Header.Name == alexa.NameAcceptGrant {
		return b.acceptGrant(ctx, d, profile)
	}

	hubID, err := b.deps.Claims.Resolve(ctx, profile)
	if err != nil {
		return b.claimError(err, profile, corr)
	}
	b.logger.Debug("directive", "directive", d.Kind(), "identity_id", profile.IdentityID, "hub_id", hubID)

	switch {
	case d.Header.Namespace == alexa.NamespaceDiscovery && d.Header.Name == alexa.NameDiscover:
		return b.discover(ctx, hubID)
	case d.Header.Namespace == alexa.NamespaceAlexa && d.Header.Name == alexa.NameReportState:
		return b.reportState(ctx, hubID, d, token)
	case d.IsControl():
		return b.control(ctx, hubID, d, rawDirective)
	}
	return alexa.NewErrorResponse(alexa.ErrTypeInvalidDirective, "Unhandled directive: "+d.Kind(), corr)
}

// profile resolves token to an identity, honouring test tokens.
func (b *Bridge) profile(ctx context.Context, token string) (identity.Profile, error) {
	if b.allowTestTokens && strings.HasPrefix(token, testTokenPrefix) {
		return ParseTestToken(token), nil
	}
	return b.deps.Profiles.Profile(ctx, token)
}

// ParseTestToken decodes "user-<id>|<email>". The email defaults to
// "<id>@example.com"; the id keeps its "user-" prefix.
func ParseTestToken(token string) identity.Profile {
	id, email, _ := strings.Cut(token, "|")
	if email == "" {
		email = id + "@example.com"
	}
	return identity.Profile{IdentityID: id, Email: email}
}

func (b *Bridge) claimError(err error, p identity.Profile, corr string) *alexa.Response {
	switch {
	case errors.Is(err, identity.ErrNoHubAssigned):
		return alexa.NewErrorResponse(alexa.ErrTypeAcceptGrantFailed, "No house assigned to this email.", corr)
	case errors.Is(err, identity.ErrAlreadyClaimed):
		return alexa.NewErrorResponse(alexa.ErrTypeAcceptGrantFailed, "Security: House already claimed by another account.", corr)
	}
	b.logger.Error("claim resolution failed", "identity_id", p.IdentityID, "error", err)
	return alexa.NewErrorResponse(alexa.ErrTypeInternal, "Internal Error", corr)
}

// count records the outcome and passes resp through.
func (b *Bridge) count(namespace string, resp *alexa.Response) *alexa.Response {
	result := metrics.ResultOK
	if resp.ErrorType() != "" {
		result = metrics.ResultError
	}
	if namespace == "" {
		namespace = "invalid"
	}
	metrics.DirectivesTotal.WithLabelValues(namespace, result).Inc()
	return resp
}

// async runs fn in the background with a detached, bounded context.
func (b *Bridge) async(ctx context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
		defer cancel()
		fn(ctx)
	}()
}
