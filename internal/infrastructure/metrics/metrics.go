// Package metrics holds the relay's Prometheus collectors.
//
// Collectors are package globals so any component can count without
// plumbing. They are registered once at startup with MustRegister and
// served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slidebolt"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	HubMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_messages_total",
			Help:      "Hub protocol messages by action and result.",
		},
		[]string{"action", "result"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Hub messages rejected by the per-hub rate limit.",
		},
	)

	DirectivesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_total",
			Help:      "Alexa directives by namespace and result.",
		},
		[]string{"namespace", "result"},
	)

	ProactiveReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proactive_reports_total",
			Help:      "ChangeReport and DeleteReport attempts by result.",
		},
		[]string{"kind", "result"},
	)

	HubConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_connections",
			Help:      "Live hub WebSocket connections.",
		},
	)
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultDenied  = "denied"
)

// MustRegister registers every collector with reg. It panics on a
// duplicate registration.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		HubMessagesTotal,
		RateLimitedTotal,
		DirectivesTotal,
		ProactiveReportsTotal,
		HubConnections,
	)
}

// Handler serves the collectors gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
