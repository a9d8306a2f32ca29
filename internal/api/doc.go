// Package api provides the relay's HTTP surface.
//
// It serves:
//   - POST /alexa/directive, the Smart Home skill endpoint
//   - the hub WebSocket (websocket.path, default /hub/ws)
//   - the admin control plane under /api/v1/admin, authenticated with
//     HS256 JWTs issued by POST /api/v1/admin/token
//   - /health and the Prometheus /metrics endpoint
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
