package transport

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

// State is the lifecycle state of one Connection.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

const (
	// DefaultConnectTimeout bounds connection establishment; a dial that
	// has not reached open by then is force-closed.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHeartbeatInterval paces application-level pings.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultDevPort is the backend port used outside production.
	DefaultDevPort = 8000
)

// MessageHandler receives every decoded inbound frame.
type MessageHandler func(models.Frame)

// StateHandler receives true on open and false on close.
type StateHandler func(connected bool)

// Options configure a Connection.
type Options struct {
	Host        string // host without port; the dev port is appended outside production
	Secure      bool   // secure page → wss
	Environment string // "production" disables the dev port override
	DevPort     int

	ChatbotID string
	UserID    string
	SessionID string // may be empty before the server assigns one

	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64
	MaxAttempts    int

	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.DevPort == 0 {
		o.DevPort = DefaultDevPort
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Connection owns exactly one physical websocket. It frames outbound
// intents, dispatches decoded inbound frames to registered handlers, and
// re-establishes itself after unintentional closes until the backoff
// policy gives up. All handler dispatch happens on the read goroutine, in
// arrival order.
type Connection struct {
	opts Options
	log  *zap.Logger

	mu            sync.Mutex
	state         State
	ws            *websocket.Conn
	intentional   bool
	disposed      bool
	gen           int // dial generation; stale goroutines and timers no-op
	lastActivity  time.Time
	heartbeatStop chan struct{}
	reconnectTim  *time.Timer
	recon         *reconnector

	writeMu sync.Mutex

	handlerMu     sync.Mutex
	nextToken     int
	msgHandlers   map[int]MessageHandler
	stateHandlers map[int]StateHandler
}

// NewConnection builds an idle Connection; Connect starts it.
func NewConnection(opts Options) *Connection {
	opts.applyDefaults()
	return &Connection{
		opts:          opts,
		log:           opts.Logger,
		state:         StateIdle,
		recon:         newReconnector(opts.BackoffInitial, opts.BackoffMax, opts.BackoffFactor, opts.MaxAttempts),
		msgHandlers:   make(map[int]MessageHandler),
		stateHandlers: make(map[int]StateHandler),
	}
}

// Connect opens the transport asynchronously. Completion is observed via
// the state handlers. A connect while already connecting or open is a
// logged no-op.
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if c.state == StateConnecting || c.state == StateOpen {
		state := c.state
		c.mu.Unlock()
		c.log.Info("connect ignored, connection already active", zap.String("state", string(state)))
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
}

func (c *Connection) dial(gen int) {
	endpoint := c.endpointURL()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.disposed || gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		if err == nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		c.log.Warn("connection attempt failed", zap.String("endpoint", endpoint), zap.Error(err))
		c.notifyState(false)
		c.maybeReconnect(gen)
		return
	}

	c.ws = ws
	c.state = StateOpen
	c.lastActivity = time.Now()
	c.recon.reset()
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	c.log.Info("connected", zap.String("endpoint", endpoint))
	c.notifyState(true)

	go c.readLoop(ws, gen)
	go c.heartbeat(stop)
}

// endpointURL builds {ws|wss}://{host}{:devport}/ws/chat/{chatbot}?user_id=&session_id=.
func (c *Connection) endpointURL() string {
	c.mu.Lock()
	sessionID := c.opts.SessionID
	c.mu.Unlock()

	scheme := "ws"
	if c.opts.Secure {
		scheme = "wss"
	}
	host := c.opts.Host
	if c.opts.Environment != "production" {
		host = fmt.Sprintf("%s:%d", c.opts.Host, c.opts.DevPort)
	}
	q := url.Values{}
	q.Set("user_id", c.opts.UserID)
	q.Set("session_id", sessionID)
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/ws/chat/" + c.opts.ChatbotID,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Send serializes msg and writes it to the socket, stamping the send-time
// timestamp. Returns false without error when the socket is not open.
func (c *Connection) Send(msg models.Outbound) bool {
	c.mu.Lock()
	if c.state != StateOpen || c.ws == nil {
		c.mu.Unlock()
		c.log.Debug("send refused, socket not open", zap.String("type", msg.Type))
		return false
	}
	ws := c.ws
	c.mu.Unlock()

	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)

	c.writeMu.Lock()
	err := ws.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("write failed", zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	return true
}

// Disconnect intentionally closes the connection: reconnection is
// suppressed, all timers are cancelled, the socket is closed with a
// normal-closure code and the state-handler registry is cleared.
// Idempotent.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.intentional = true
	c.disposed = true
	c.gen++
	if c.reconnectTim != nil {
		c.reconnectTim.Stop()
		c.reconnectTim = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	ws := c.ws
	c.ws = nil
	c.state = StateClosing
	c.mu.Unlock()

	if ws != nil {
		deadline := time.Now().Add(time.Second)
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		ws.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	c.handlerMu.Lock()
	c.stateHandlers = make(map[int]StateHandler)
	c.handlerMu.Unlock()

	c.log.Info("disconnected")
}

// IsConnected reports whether the connection is open.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disposed reports whether Disconnect has been called; a disposed
// connection never reconnects and must be replaced.
func (c *Connection) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// LastActivity returns the time of the last inbound frame or open.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// SessionID returns the session id the connection is bound to.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.SessionID
}

// SetSessionID records a confirmed session id so that future reconnects
// bind to it. It does not touch the live socket.
func (c *Connection) SetSessionID(id string) {
	c.mu.Lock()
	c.opts.SessionID = id
	c.mu.Unlock()
}

func (c *Connection) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		c.mu.Lock()
		if c.disposed || gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.lastActivity = time.Now()
		c.mu.Unlock()

		frame, ok := decodeFrame(data, c.log)
		if !ok {
			continue
		}
		c.dispatchFrame(frame)
	}
}

// dispatchFrame invokes every registered message handler over a snapshot
// of the registry, so a handler may add or remove handlers (including
// itself) mid-dispatch. A panicking handler is contained; it never takes
// down the read loop or the remaining handlers.
func (c *Connection) dispatchFrame(frame models.Frame) {
	c.handlerMu.Lock()
	tokens := make([]int, 0, len(c.msgHandlers))
	for tok := range c.msgHandlers {
		tokens = append(tokens, tok)
	}
	sort.Ints(tokens)
	handlers := make([]MessageHandler, 0, len(tokens))
	for _, tok := range tokens {
		handlers = append(handlers, c.msgHandlers[tok])
	}
	c.handlerMu.Unlock()

	for _, h := range handlers {
		c.invoke(h, frame)
	}
}

func (c *Connection) invoke(h MessageHandler, frame models.Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("message handler panicked", zap.Any("panic", r))
		}
	}()
	h(frame)
}

func (c *Connection) handleClose(gen int, err error) {
	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.ws = nil
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	c.mu.Unlock()

	c.log.Warn("connection closed", zap.Error(err))
	c.notifyState(false)
	c.maybeReconnect(gen)
}

// maybeReconnect schedules a single backoff-delayed reconnect attempt.
// No-op when the close was intentional or the attempt cap is reached.
func (c *Connection) maybeReconnect(gen int) {
	c.mu.Lock()
	if c.disposed || c.intentional {
		c.mu.Unlock()
		return
	}
	if !c.recon.shouldRetry() {
		c.mu.Unlock()
		c.log.Warn("reconnect attempts exhausted, staying disconnected",
			zap.Int("attempts", c.recon.maxAttempts))
		return
	}
	delay := c.recon.nextDelay()
	attempt := c.recon.attempts
	c.reconnectTim = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := c.disposed || c.intentional || gen != c.gen ||
			c.state == StateOpen || c.state == StateConnecting
		c.mu.Unlock()
		if stale {
			return
		}
		c.Connect()
	})
	c.mu.Unlock()

	c.log.Info("reconnect scheduled",
		zap.Duration("delay", delay), zap.Int("attempt", attempt))
}

// heartbeat sends application-level pings until the connection closes.
func (c *Connection) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.Send(models.Outbound{Type: models.TypePing}) {
				return
			}
		}
	}
}

// AddMessageHandler registers h and returns a removal token. A nil
// handler is rejected with a log, not stored.
func (c *Connection) AddMessageHandler(h MessageHandler) int {
	if h == nil {
		c.log.Warn("ignoring nil message handler")
		return 0
	}
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextToken++
	c.msgHandlers[c.nextToken] = h
	return c.nextToken
}

// RemoveMessageHandler unregisters the handler added under token.
func (c *Connection) RemoveMessageHandler(token int) {
	c.handlerMu.Lock()
	delete(c.msgHandlers, token)
	c.handlerMu.Unlock()
}

// AddStateHandler registers h, invoked with a boolean on every open and
// close transition. A nil handler is rejected with a log, not stored.
func (c *Connection) AddStateHandler(h StateHandler) int {
	if h == nil {
		c.log.Warn("ignoring nil state handler")
		return 0
	}
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextToken++
	c.stateHandlers[c.nextToken] = h
	return c.nextToken
}

// RemoveStateHandler unregisters the handler added under token.
func (c *Connection) RemoveStateHandler(token int) {
	c.handlerMu.Lock()
	delete(c.stateHandlers, token)
	c.handlerMu.Unlock()
}

func (c *Connection) notifyState(connected bool) {
	c.handlerMu.Lock()
	handlers := make([]StateHandler, 0, len(c.stateHandlers))
	for _, h := range c.stateHandlers {
		handlers = append(handlers, h)
	}
	c.handlerMu.Unlock()

	for _, h := range handlers {
		h(connected)
	}
}

// SnapshotMessageHandlers copies the message-handler registry, keyed by
// token, so it can be carried onto a replacement connection.
func (c *Connection) SnapshotMessageHandlers() map[int]MessageHandler {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	snapshot := make(map[int]MessageHandler, len(c.msgHandlers))
	for tok, h := range c.msgHandlers {
		snapshot[tok] = h
	}
	return snapshot
}

// RestoreMessageHandlers installs a snapshotted registry. Tokens are
// preserved so removals issued against the old connection stay valid.
func (c *Connection) RestoreMessageHandlers(handlers map[int]MessageHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	for tok, h := range handlers {
		c.msgHandlers[tok] = h
		if tok > c.nextToken {
			c.nextToken = tok
		}
	}
}
