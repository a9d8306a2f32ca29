// Package push is the relay's push-delivery capability: a WebSocket
// connection manager that addresses each live hub socket by an opaque
// handle.
//
// Inbound frames are handed to a MessageHandler one at a time per
// connection. Outbound payloads go through Send, which never blocks: a
// full per-connection buffer drops the message.
//
//	m := push.NewManager(cfg.WebSocket, logger)
//	m.SetHandler(dispatcher)
//	r.Get(cfg.WebSocket.Path, m.ServeHTTP)
package push
