package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lms-io/alexa-slidebolt/internal/alexa"
	"github.com/lms-io/alexa-slidebolt/internal/audit"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/identity"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/logging"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DirectiveHandler answers Alexa directive envelopes. *bridge.Bridge
// implements it.
type DirectiveHandler interface {
	Handle(ctx context.Context, raw []byte) *alexa.Response
}

// HubSocket accepts hub WebSocket upgrades. *push.Manager implements it.
type HubSocket interface {
	http.Handler
	Count() int
}

// BrokerStatus reports the stream broker link. *mqtt.Client implements it.
type BrokerStatus interface {
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WebSocket  config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	DB         *database.DB
	Hubs       hub.Repository
	Identities identity.Repository
	Audit      audit.Repository
	Directives DirectiveHandler
	HubSocket  HubSocket
	Gatherer   prometheus.Gatherer
	MQTT       BrokerStatus // optional
	Version    string
}

// Server is the relay's HTTP server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	db         *database.DB
	hubs       hub.Repository
	identities identity.Repository
	auditRepo  audit.Repository
	audit      *audit.Recorder
	directives DirectiveHandler
	hubSocket  HubSocket
	gatherer   prometheus.Gatherer
	mqtt       BrokerStatus
	version    string
	startTime  time.Time
	now        func() time.Time
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Hubs == nil || deps.Identities == nil || deps.Audit == nil:
		return nil, fmt.Errorf("hub, identity and audit repositories are required")
	case deps.Directives == nil:
		return nil, fmt.Errorf("directive handler is required")
	case deps.HubSocket == nil:
		return nil, fmt.Errorf("hub socket is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	recorder := audit.NewRecorder(deps.Audit)
	recorder.SetLogger(deps.Logger)

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WebSocket,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		db:         deps.DB,
		hubs:       deps.Hubs,
		identities: deps.Identities,
		auditRepo:  deps.Audit,
		audit:      recorder,
		directives: deps.Directives,
		hubSocket:  deps.HubSocket,
		gatherer:   deps.Gatherer,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		startTime:  time.Now(),
		now:        time.Now,
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Hijacked hub sockets are
// closed by their own manager.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and its database answers.
func (s *Server) HealthCheck(ctx context.Context) error {
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	if s.db != nil {
		return s.db.HealthCheck(ctx)
	}
	return nil
}
