package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestMustRegister_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	HubMessagesTotal.WithLabelValues("state_update", ResultOK).Inc()
	DirectivesTotal.WithLabelValues("Alexa.Discovery", ResultOK).Inc()
	ProactiveReportsTotal.WithLabelValues("change", ResultSkipped).Inc()
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	RateLimitedTotal.Inc()
	HubConnections.Set(3)

	body := scrape(t, reg)
	for _, want := range []string{
		`slidebolt_hub_messages_total{action="state_update",result="ok"}`,
		`slidebolt_directives_total{namespace="Alexa.Discovery",result="ok"}`,
		`slidebolt_proactive_reports_total{kind="change",result="skipped"}`,
		`slidebolt_http_requests_total{method="GET",route="/health",status="200"}`,
		`slidebolt_rate_limited_total`,
		`slidebolt_hub_connections 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMustRegister_DuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	defer func() {
		if recover() == nil {
			t.Error("second MustRegister() did not panic")
		}
	}()
	MustRegister(reg)
}
