package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/metrics"
)

// defaultHubSocketPath is used when websocket.path is unset.
const defaultHubSocketPath = "/hub/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))

	// Hubs authenticate with register frames on the socket itself.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultHubSocketPath
	}
	r.Method(http.MethodGet, wsPath, s.hubSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.bodySizeLimitMiddleware)
		if s.secCfg.RateLimit.Enabled && s.secCfg.RateLimit.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.secCfg.RateLimit.RequestsPerMinute, time.Minute))
		}

		r.Post("/alexa/directive", s.handleDirective)

		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Use(cors.Handler(s.corsOptions()))

			r.Post("/token", s.handleIssueToken)

			r.Group(func(r chi.Router) {
				r.Use(s.adminAuthMiddleware)

				r.Route("/hubs", func(r chi.Router) {
					r.Get("/", s.handleListHubs)
					r.Post("/", s.handleCreateHub)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetHub)
						r.Patch("/", s.handleUpdateHub)
						r.Delete("/", s.handleDeleteHub)
						r.Post("/revoke", s.handleRevokeHub)
						r.Get("/users", s.handleListHubUsers)
						r.Post("/users", s.handleAddHubUser)
					})
				})

				r.Delete("/users/{userId}", s.handleRemoveUser)
				r.Get("/audit", s.handleListAuditLogs)
				r.Get("/system", s.handleSystemMetrics)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "unavailable",
				"version": s.version,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleDirective answers one Alexa directive. The reply is always 200
// with a response envelope, including for unreadable bodies.
func (s *Server) handleDirective(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("directive body unreadable", "error", err)
		body = nil
	}
	writeJSON(w, http.StatusOK, s.directives.Handle(r.Context(), body))
}
