package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/mqtt"
)

// SystemMetrics represents the admin system snapshot.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	HubSockets    SocketMetrics   `json:"hub_sockets"`
	Hubs          HubMetrics      `json:"hubs"`
	MQTT          *mqtt.Stats     `json:"mqtt,omitempty"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SocketMetrics counts open hub WebSockets on this instance.
type SocketMetrics struct {
	Open int `json:"open"`
}

// HubMetrics counts provisioned hubs by status.
type HubMetrics struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Revoked int `json:"revoked"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemMetrics returns a point-in-time snapshot of the relay.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(s.now().Sub(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		HubSockets: SocketMetrics{Open: s.hubSocket.Count()},
	}

	hubs, err := s.hubs.List(r.Context())
	if err != nil {
		s.logger.Error("list hubs for metrics failed", "error", err)
		writeInternalError(w, "failed to collect metrics")
		return
	}
	for _, h := range hubs {
		snapshot.Hubs.Total++
		if h.Status == hub.StatusRevoked {
			snapshot.Hubs.Revoked++
		} else {
			snapshot.Hubs.Active++
		}
	}

	if s.mqtt != nil {
		stats := s.mqtt.Stats()
		snapshot.MQTT = &stats
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		snapshot.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, snapshot)
}
