// Package session multiplexes a single physical connection across
// logical conversation sessions. The backend binds the session id at
// connect time (a query parameter, not a per-message field), so switching
// sessions means tearing the pipe down and rebuilding it; the multiplexer
// hides that and guarantees registered message handlers survive the swap.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/transport"
)

// Mux is the connection object the rest of the application holds. It
// wraps one live transport.Connection at a time.
type Mux struct {
	mu   sync.Mutex
	opts transport.Options
	conn *transport.Connection
	log  *zap.Logger
}

// NewMux builds a multiplexer for the given chatbot, optionally bound to
// an existing session id.
func NewMux(opts transport.Options) *Mux {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Mux{
		opts: opts,
		conn: transport.NewConnection(opts),
		log:  opts.Logger,
	}
}

// Connect opens the wrapped connection, constructing a fresh one if the
// previous instance was disposed by Disconnect.
func (m *Mux) Connect() {
	m.mu.Lock()
	if m.conn.Disposed() {
		handlers := m.conn.SnapshotMessageHandlers()
		m.conn = transport.NewConnection(m.opts)
		m.conn.RestoreMessageHandlers(handlers)
	}
	conn := m.conn
	m.mu.Unlock()
	conn.Connect()
}

// Disconnect closes the wrapped connection.
func (m *Mux) Disconnect() {
	m.current().Disconnect()
}

// UpdateSessionID rebinds the multiplexer to a different session. The
// existing connection is fully torn down and a replacement constructed
// against the new id, carrying the message-handler registry over, so at
// most one physical connection is live at any time. A no-op when the id
// is unchanged.
func (m *Mux) UpdateSessionID(newID string) {
	m.mu.Lock()
	if newID == m.opts.SessionID {
		m.mu.Unlock()
		m.log.Debug("session id unchanged, keeping connection", zap.String("session_id", newID))
		return
	}
	old := m.conn
	handlers := old.SnapshotMessageHandlers()
	m.opts.SessionID = newID
	m.mu.Unlock()

	old.Disconnect()

	m.mu.Lock()
	next := transport.NewConnection(m.opts)
	next.RestoreMessageHandlers(handlers)
	m.conn = next
	m.mu.Unlock()

	m.log.Info("session rebound", zap.String("session_id", newID))
	next.Connect()
}

// AdoptSessionID records a server-confirmed session id without rebuilding
// the transport: the live connection was already bound to it server-side
// when the session was created. Future reconnects carry the confirmed id.
func (m *Mux) AdoptSessionID(id string) {
	m.mu.Lock()
	m.opts.SessionID = id
	conn := m.conn
	m.mu.Unlock()
	conn.SetSessionID(id)
}

// SessionID returns the currently bound session id ("" before the first
// session is created).
func (m *Mux) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.SessionID
}

// Send delegates to the wrapped connection.
func (m *Mux) Send(msg models.Outbound) bool {
	return m.current().Send(msg)
}

// IsConnected delegates to the wrapped connection.
func (m *Mux) IsConnected() bool {
	return m.current().IsConnected()
}

// AddMessageHandler delegates to the wrapped connection; the returned
// token stays valid across session rebinds.
func (m *Mux) AddMessageHandler(h transport.MessageHandler) int {
	return m.current().AddMessageHandler(h)
}

// RemoveMessageHandler delegates to the wrapped connection.
func (m *Mux) RemoveMessageHandler(token int) {
	m.current().RemoveMessageHandler(token)
}

// AddStateHandler delegates to the wrapped connection.
func (m *Mux) AddStateHandler(h transport.StateHandler) int {
	return m.current().AddStateHandler(h)
}

// RemoveStateHandler delegates to the wrapped connection.
func (m *Mux) RemoveStateHandler(token int) {
	m.current().RemoveStateHandler(token)
}

func (m *Mux) current() *transport.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}
