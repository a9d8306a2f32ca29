package push

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/logging"
)

// echoHandler replies to every frame through the manager and records
// disconnects.
type echoHandler struct {
	m            *Manager
	mu           sync.Mutex
	handles      []string
	disconnected chan string
}

func (h *echoHandler) HandleMessage(_ context.Context, handle string, data []byte) {
	h.mu.Lock()
	h.handles = append(h.handles, handle)
	h.mu.Unlock()
	_ = h.m.Send(handle, map[string]string{"echo": string(data)})
}

func (h *echoHandler) HandleDisconnect(_ context.Context, handle string) {
	h.disconnected <- handle
}

func (h *echoHandler) lastHandle() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.handles) == 0 {
		return ""
	}
	return h.handles[len(h.handles)-1]
}

func setup(t *testing.T) (*Manager, *echoHandler, string) {
	t.Helper()
	m := NewManager(config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10}, logging.Discard())
	h := &echoHandler{m: m, disconnected: make(chan string, 4)}
	m.SetHandler(h)

	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return m, h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return conn
}

func TestManager_RoundTrip(t *testing.T) {
	m, h, url := setup(t)
	conn := dial(t, url)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(data) != `{"echo":"{\"action\":\"ping\"}"}` {
		t.Errorf("reply = %s", data)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}

	// Raw bytes are forwarded untouched.
	if err := m.Send(h.lastHandle(), []byte(`{"raw":true}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil || string(data) != `{"raw":true}` {
		t.Errorf("ReadMessage() = %s, %v", data, err)
	}
}

func TestManager_Disconnect(t *testing.T) {
	m, h, url := setup(t)
	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`hi`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_, _, _ = conn.ReadMessage()
	handle := h.lastHandle()
	conn.Close()

	select {
	case got := <-h.disconnected:
		if got != handle {
			t.Errorf("disconnected %q, want %q", got, handle)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HandleDisconnect not called")
	}

	if err := m.Send(handle, "late"); !errors.Is(err, ErrConnectionGone) {
		t.Errorf("Send() after close error = %v, want ErrConnectionGone", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestManager_ServerClose(t *testing.T) {
	m, h, url := setup(t)
	conn := dial(t, url)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`hi`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_, _, _ = conn.ReadMessage()
	handle := h.lastHandle()

	if err := m.Close(handle); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case <-h.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleDisconnect not called after server close")
	}
	if err := m.Close("unknown"); !errors.Is(err, ErrConnectionGone) {
		t.Errorf("Close(unknown) error = %v, want ErrConnectionGone", err)
	}
}

func TestManager_RunClosesAll(t *testing.T) {
	m, h, url := setup(t)
	conn := dial(t, url)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`hi`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_, _, _ = conn.ReadMessage()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
	}
	select {
	case <-h.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed on shutdown")
	}
}

func TestTrySend_BufferFull(t *testing.T) {
	c := &client{send: make(chan []byte, 1)}
	if err := c.trySend([]byte("a")); err != nil {
		t.Fatalf("trySend() error = %v", err)
	}
	if err := c.trySend([]byte("b")); !errors.Is(err, ErrBufferFull) {
		t.Errorf("trySend(full) error = %v, want ErrBufferFull", err)
	}
	close(c.send)
	if err := c.trySend([]byte("c")); !errors.Is(err, ErrConnectionGone) {
		t.Errorf("trySend(closed) error = %v, want ErrConnectionGone", err)
	}
}
