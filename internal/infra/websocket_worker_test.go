package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHandler implements WebSocketHandler for testing
type mockHandler struct {
	url            string
	onConnectCalls atomic.Int32

	mu       sync.Mutex
	messages []string
}

func (m *mockHandler) GetURL() string { return m.url }
func (m *mockHandler) ID() string     { return "MOCK" }
func (m *mockHandler) OnConnect(ctx context.Context, w *BaseWSWorker) error {
	m.onConnectCalls.Add(1)
	return w.Write(websocket.TextMessage, []byte(`{"op":"subscribe"}`))
}
func (m *mockHandler) OnMessage(ctx context.Context, msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, string(msg))
}
func (m *mockHandler) OnPing(ctx context.Context, w *BaseWSWorker) error {
	return w.Write(websocket.TextMessage, []byte("ping"))
}

func (m *mockHandler) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// createMockWSServer creates a test WebSocket server
func createMockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

// httpToWS converts http:// URL to ws://
func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func TestBaseWSWorker_SubscribeAndReceive(t *testing.T) {
	subscribed := make(chan string, 1)
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(msg)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"orderbook"}`))
		time.Sleep(300 * time.Millisecond)
	})
	defer server.Close()

	handler := &mockHandler{url: httpToWS(server.URL)}
	metrics := NewMetrics()
	worker := NewBaseWSWorker(handler, metrics)
	worker.ReadTimeout = time.Second
	worker.PingInterval = 0

	require.NoError(t, worker.Connect(context.Background()))

	select {
	case msg := <-subscribed:
		assert.Equal(t, `{"op":"subscribe"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not received")
	}

	require.Eventually(t, func() bool { return len(handler.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"type":"orderbook"}`, handler.received()[0])
	assert.True(t, worker.IsConnected())
	assert.Equal(t, int32(1), metrics.Snapshot().ActiveConnections)

	worker.Disconnect()
	assert.False(t, worker.IsConnected())
	assert.Equal(t, int32(0), metrics.Snapshot().ActiveConnections)
}

func TestBaseWSWorker_Reconnect(t *testing.T) {
	var connections atomic.Int32
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		connections.Add(1)
		// drop the connection right after the subscription
		conn.ReadMessage()
	})
	defer server.Close()

	handler := &mockHandler{url: httpToWS(server.URL)}
	worker := NewBaseWSWorker(handler, nil)
	worker.PingInterval = 0
	worker.Backoff = func(int) time.Duration { return 10 * time.Millisecond }

	require.NoError(t, worker.Connect(context.Background()))
	defer worker.Disconnect()

	require.Eventually(t, func() bool { return connections.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, handler.onConnectCalls.Load(), int32(2))
}

func TestBaseWSWorker_DialFailure(t *testing.T) {
	handler := &mockHandler{url: "ws://127.0.0.1:1/unreachable"}
	metrics := NewMetrics()
	worker := NewBaseWSWorker(handler, metrics)
	worker.Backoff = func(int) time.Duration { return 10 * time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.Connect(ctx))

	require.Eventually(t, func() bool { return metrics.Snapshot().Reconnects >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, worker.IsConnected())

	cancel()
	worker.Disconnect()
}

func TestBaseWSWorker_WriteWithoutConnection(t *testing.T) {
	worker := NewBaseWSWorker(&mockHandler{}, nil)
	err := worker.Write(websocket.TextMessage, []byte("x"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection failed")
}
