package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/logging"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/metrics"
)

// sendBufferSize is the per-connection outbound message buffer size.
const sendBufferSize = 256

// Sender delivers a payload to a live connection.
type Sender interface {
	Send(handle string, payload any) error
}

// MessageHandler receives inbound frames and disconnect notifications.
type MessageHandler interface {
	HandleMessage(ctx context.Context, handle string, data []byte)
	HandleDisconnect(ctx context.Context, handle string)
}

// Manager owns every live hub connection.
type Manager struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	handler MessageHandler

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	handle string
	conn   *websocket.Conn
	send   chan []byte
}

// NewManager creates a connection manager.
func NewManager(cfg config.WebSocketConfig, logger *logging.Logger) *Manager {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Hubs are not browsers; they authenticate with register.
				return true
			},
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
	}
}

// SetHandler sets the inbound message handler. Must be called before the
// first connection is served.
func (m *Manager) SetHandler(h MessageHandler) {
	m.handler = h
}

// Run blocks until ctx is cancelled, then closes every connection.
func (m *Manager) Run(ctx context.Context) error {
	<-ctx.Done()
	m.cancel()
	m.closeAll()
	return nil
}

// ServeHTTP upgrades the request and starts the connection's pumps.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		handle: uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	m.register(c)

	go m.writePump(c)
	go m.readPump(c)
}

// Send marshals payload (raw []byte is sent as-is) to the connection.
func (m *Manager) Send(handle string, payload any) error {
	data, ok := payload.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
	}

	m.mu.RLock()
	c, ok := m.clients[handle]
	m.mu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}
	return c.trySend(data)
}

// Close terminates a connection. The read pump then reports the
// disconnect to the handler.
func (m *Manager) Close(handle string) error {
	m.mu.RLock()
	c, ok := m.clients[handle]
	m.mu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}
	return c.conn.Close()
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) register(c *client) {
	m.mu.Lock()
	m.clients[c.handle] = c
	m.mu.Unlock()
	metrics.HubConnections.Inc()
	m.logger.Debug("hub connection opened", "connection_id", c.handle)
}

// unregister removes c. Only the caller that removes it closes the send
// channel, so shutdown and disconnect cannot double-close.
func (m *Manager) unregister(c *client) bool {
	m.mu.Lock()
	_, existed := m.clients[c.handle]
	delete(m.clients, c.handle)
	m.mu.Unlock()

	if existed {
		close(c.send)
		metrics.HubConnections.Dec()
	}
	return existed
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.conn.Close() //nolint:errcheck // Shutdown
	}
}

func (m *Manager) readPump(c *client) {
	defer func() {
		if m.unregister(c) {
			m.logger.Debug("hub connection closed", "connection_id", c.handle)
		}
		c.conn.Close() //nolint:errcheck // Already closing
		if m.handler != nil {
			// Shutdown cancels m.ctx; cleanup still needs a live context.
			m.handler.HandleDisconnect(context.WithoutCancel(m.ctx), c.handle)
		}
	}()

	if m.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(m.cfg.MaxMessageSize))
	}
	deadline := time.Duration(m.cfg.PingInterval+m.cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("websocket read error", "connection_id", c.handle, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		if m.handler != nil {
			m.handler.HandleMessage(m.ctx, c.handle, message)
		}
	}
}

func (m *Manager) writePump(c *client) {
	ticker := time.NewTicker(time.Duration(m.cfg.PingInterval) * time.Second)
	writeWait := time.Duration(m.cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Already closing
	}()

	for {
		select {
		case message, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data without blocking. A send racing with unregister
// hits a closed channel; that is reported as ErrConnectionGone.
func (c *client) trySend(data []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrConnectionGone
		}
	}()

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}
