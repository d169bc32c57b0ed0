package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

type wsServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := &wsServer{conns: make(chan *websocket.Conn, 8)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- ws
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) host() string { return strings.TrimPrefix(s.URL, "http://") }

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-s.conns:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(3 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func testOptions(host string) Options {
	return Options{
		Host:              host,
		Environment:       "production", // host carries its own port in tests
		ChatbotID:         "bot-1",
		UserID:            "user-1",
		ConnectTimeout:    2 * time.Second,
		HeartbeatInterval: time.Minute,
		BackoffInitial:    20 * time.Millisecond,
		BackoffMax:        100 * time.Millisecond,
		BackoffFactor:     1.5,
		MaxAttempts:       2,
		Logger:            zap.NewNop(),
	}
}

func waitConnected(t *testing.T, c *Connection) {
	t.Helper()
	require.Eventually(t, c.IsConnected, 3*time.Second, 10*time.Millisecond)
}

func TestConnectOpensAndStampsOutbound(t *testing.T) {
	srv := newWSServer(t)

	c := NewConnection(testOptions(srv.host()))
	defer c.Disconnect()
	c.Connect()
	waitConnected(t, c)

	require.True(t, c.Send(models.Outbound{
		Type:      models.TypeMessage,
		Content:   models.Text("hello"),
		ChatbotID: "bot-1",
		UserID:    "user-1",
		SessionID: "s-1",
	}))

	ws := srv.accept(t)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.Outbound
	require.NoError(t, ws.ReadJSON(&got))
	require.Equal(t, models.TypeMessage, got.Type)
	require.NotNil(t, got.Content)
	require.Equal(t, "hello", *got.Content)
	_, err := time.Parse(time.RFC3339, got.Timestamp)
	require.NoError(t, err, "timestamp stamped at send time")
}

func TestSendWhileClosedReturnsFalse(t *testing.T) {
	c := NewConnection(testOptions("localhost:1"))
	require.False(t, c.Send(models.Outbound{Type: models.TypeMessage, Content: models.Text("x")}),
		"send before connect must refuse without panicking")

	srv := newWSServer(t)
	c = NewConnection(testOptions(srv.host()))
	c.Connect()
	waitConnected(t, c)
	c.Disconnect()
	require.False(t, c.Send(models.Outbound{Type: models.TypeMessage, Content: models.Text("x")}),
		"send after disconnect must refuse")
}

func TestDuplicateConnectIsNoOp(t *testing.T) {
	srv := newWSServer(t)

	c := NewConnection(testOptions(srv.host()))
	defer c.Disconnect()
	c.Connect()
	waitConnected(t, c)
	c.Connect()

	srv.accept(t)
	select {
	case <-srv.conns:
		t.Fatal("second connect must not dial a second socket")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConnectTimeoutTriggersStateHandler(t *testing.T) {
	// Accept TCP connections but never answer the websocket handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	var held []net.Conn
	var heldMu sync.Mutex
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			heldMu.Lock()
			held = append(held, conn)
			heldMu.Unlock()
		}
	}()
	defer func() {
		heldMu.Lock()
		for _, conn := range held {
			conn.Close()
		}
		heldMu.Unlock()
	}()

	opts := testOptions(ln.Addr().String())
	opts.ConnectTimeout = 100 * time.Millisecond
	opts.MaxAttempts = 1

	c := NewConnection(opts)
	defer c.Disconnect()

	var mu sync.Mutex
	var falses int
	c.AddStateHandler(func(connected bool) {
		if !connected {
			mu.Lock()
			falses++
			mu.Unlock()
		}
	})

	c.Connect()

	// One timeout for the initial attempt, one for the single retry.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return falses == 2
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 2, falses, "attempt cap honored after timeouts")
	mu.Unlock()
}

func TestReconnectAfterServerClose(t *testing.T) {
	srv := newWSServer(t)

	c := NewConnection(testOptions(srv.host()))
	defer c.Disconnect()
	c.Connect()
	waitConnected(t, c)

	ws := srv.accept(t)
	ws.Close()

	// A second upgrade arriving proves the backoff-driven redial.
	srv.accept(t)
	waitConnected(t, c)
}

func TestIntentionalDisconnectSuppressesReconnect(t *testing.T) {
	srv := newWSServer(t)

	c := NewConnection(testOptions(srv.host()))
	c.Connect()
	waitConnected(t, c)
	srv.accept(t)

	var mu sync.Mutex
	var falses int
	c.AddStateHandler(func(connected bool) {
		if !connected {
			mu.Lock()
			falses++
			mu.Unlock()
		}
	})

	c.Disconnect()
	require.Equal(t, StateClosed, c.State())
	require.True(t, c.Disposed())

	select {
	case <-srv.conns:
		t.Fatal("disposed connection must not redial")
	case <-time.After(300 * time.Millisecond):
	}
	mu.Lock()
	require.Zero(t, falses, "intentional close emits no disconnect notification")
	mu.Unlock()
}

func TestExhaustedAttemptsStopRedialing(t *testing.T) {
	// Grab a port with nothing listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	opts := testOptions(addr)
	opts.BackoffInitial = 10 * time.Millisecond
	opts.BackoffMax = 20 * time.Millisecond
	opts.MaxAttempts = 2

	c := NewConnection(opts)
	defer c.Disconnect()

	var mu sync.Mutex
	var falses int
	c.AddStateHandler(func(connected bool) {
		if !connected {
			mu.Lock()
			falses++
			mu.Unlock()
		}
	})

	c.Connect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return falses == 3
	}, 3*time.Second, 10*time.Millisecond, "initial failure plus two retries")

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 3, falses)
	mu.Unlock()
}

func TestHandlerMayRemoveItselfMidDispatch(t *testing.T) {
	srv := newWSServer(t)

	c := NewConnection(testOptions(srv.host()))
	defer c.Disconnect()

	frames := make(chan string, 8)
	var token int
	token = c.AddMessageHandler(func(frame models.Frame) {
		content, _ := frame.String("content")
		frames <- content
		c.RemoveMessageHandler(token)
	})

	c.Connect()
	waitConnected(t, c)
	ws := srv.accept(t)

	write := func(content string) {
		require.NoError(t, ws.WriteJSON(map[string]any{
			"type": "response", "session_id": "s-1", "content": content,
		}))
	}
	write("first")
	write("second")

	select {
	case got := <-frames:
		require.Equal(t, "first", got)
	case <-time.After(2 * time.Second):
		t.Fatal("first frame never dispatched")
	}
	select {
	case got := <-frames:
		t.Fatalf("removed handler still ran with %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPanickingHandlerDoesNotKillDispatch(t *testing.T) {
	srv := newWSServer(t)

	c := NewConnection(testOptions(srv.host()))
	defer c.Disconnect()

	c.AddMessageHandler(func(models.Frame) { panic("boom") })
	frames := make(chan string, 8)
	c.AddMessageHandler(func(frame models.Frame) {
		content, _ := frame.String("content")
		frames <- content
	})

	c.Connect()
	waitConnected(t, c)
	ws := srv.accept(t)

	payload, err := json.Marshal(map[string]any{"type": "response", "content": "still alive"})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, payload))

	select {
	case got := <-frames:
		require.Equal(t, "still alive", got)
	case <-time.After(2 * time.Second):
		t.Fatal("later handler starved by a panicking one")
	}
}

func TestNilHandlersRejected(t *testing.T) {
	c := NewConnection(testOptions("localhost:1"))
	require.Zero(t, c.AddMessageHandler(nil))
	require.Zero(t, c.AddStateHandler(nil))
}

func TestSnapshotRestorePreservesTokens(t *testing.T) {
	c := NewConnection(testOptions("localhost:1"))
	tok := c.AddMessageHandler(func(models.Frame) {})

	next := NewConnection(testOptions("localhost:1"))
	next.RestoreMessageHandlers(c.SnapshotMessageHandlers())

	require.Len(t, next.SnapshotMessageHandlers(), 1)
	next.RemoveMessageHandler(tok)
	require.Empty(t, next.SnapshotMessageHandlers(), "old token remains valid on the replacement")
}

func TestEndpointURLShape(t *testing.T) {
	c := NewConnection(Options{
		Host:      "example.com",
		Secure:    true,
		ChatbotID: "bot-9",
		UserID:    "u-9",
		SessionID: "s-9",
		Logger:    zap.NewNop(),
	})
	got := c.endpointURL()
	require.Equal(t, "wss://example.com:8000/ws/chat/bot-9?session_id=s-9&user_id=u-9", got)

	c = NewConnection(Options{
		Host:        "chat.example.com",
		Secure:      true,
		Environment: "production",
		ChatbotID:   "bot-9",
		UserID:      "u-9",
		Logger:      zap.NewNop(),
	})
	require.Equal(t, "wss://chat.example.com/ws/chat/bot-9?session_id=&user_id=u-9", c.endpointURL())
}
