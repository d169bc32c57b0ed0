// Package client is the facade the UI layer holds: it composes the
// session multiplexer, the conversation store, and the history
// collaborator into one object with the send/receive surface the chat
// widget needs.
package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/conversation"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/history"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/session"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/transport"
)

// Options configure a Client.
type Options struct {
	Transport  transport.Options
	HistoryURL string // base URL of the chat history API; empty disables seeding
	Logger     *zap.Logger
}

// Client wires the realtime core together.
type Client struct {
	mux   *session.Mux
	store *conversation.Store
	hist  *history.Client
	log   *zap.Logger

	chatbotID string
	userID    string
}

// New builds a Client. The conversation reconciler is registered as a
// message handler up front, so it survives every session rebind.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	opts.Transport.Logger = log

	c := &Client{
		store:     conversation.NewStore(log),
		log:       log,
		chatbotID: opts.Transport.ChatbotID,
		userID:    opts.Transport.UserID,
	}
	c.mux = session.NewMux(opts.Transport)
	c.mux.AddMessageHandler(c.handleFrame)
	if opts.HistoryURL != "" {
		c.hist = history.NewClient(opts.HistoryURL, log)
	}
	return c
}

// Connect opens the realtime connection.
func (c *Client) Connect() { c.mux.Connect() }

// Disconnect closes the realtime connection intentionally.
func (c *Client) Disconnect() { c.mux.Disconnect() }

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool { return c.mux.IsConnected() }

// LoadHistory seeds the conversation store from the history collaborator.
func (c *Client) LoadHistory(ctx context.Context) error {
	if c.hist == nil {
		return fmt.Errorf("no history endpoint configured")
	}
	records, err := c.hist.Conversations(ctx, c.chatbotID, c.userID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	c.store.Seed(records)
	return nil
}

// SendMessage appends an optimistic user message and sends it. The first
// message of a sessionless conversation goes out as new_session and is
// filed under a fresh provisional conversation pending the
// session_created reply. Returns false when the socket is not open.
func (c *Client) SendMessage(text string) bool {
	sessionID := c.mux.SessionID()
	if sessionID == "" {
		convID := c.store.ActiveID()
		if !models.IsProvisionalSessionID(convID) {
			convID = c.store.StartProvisional().SessionID
		}
		msg := c.store.AppendLocal(convID, text)
		ok := c.mux.Send(models.Outbound{
			Type:      models.TypeNewSession,
			Content:   models.Text(text),
			ChatbotID: c.chatbotID,
			UserID:    c.userID,
		})
		c.finishSend(msg.ID, ok)
		return ok
	}

	msg := c.store.AppendLocal(sessionID, text)
	ok := c.mux.Send(models.Outbound{
		Type:      models.TypeMessage,
		Content:   models.Text(text),
		ChatbotID: c.chatbotID,
		UserID:    c.userID,
		SessionID: sessionID,
	})
	c.finishSend(msg.ID, ok)
	return ok
}

// finishSend resolves the optimistic sending status. A refused send is a
// synchronous failure and marked error; an accepted write is marked sent,
// as there is no acknowledgment protocol. Lookup is by message id because
// the conversation may have been rebound to its confirmed session id by
// the time the send returns.
func (c *Client) finishSend(messageID string, ok bool) {
	if ok {
		c.store.SetStatusByID(messageID, models.StatusSent)
		return
	}
	c.store.SetStatusByID(messageID, models.StatusError)
}

// UpdateSessionID switches to another conversation, rebuilding the
// transport against the new session id.
func (c *Client) UpdateSessionID(sessionID string) {
	c.mux.UpdateSessionID(sessionID)
	c.store.Ensure(sessionID)
	c.store.SetActive(sessionID)
}

// StartNewConversation unbinds the current session and opens a fresh
// provisional conversation. Prior conversations are kept.
func (c *Client) StartNewConversation() models.Conversation {
	c.mux.UpdateSessionID("")
	return c.store.StartProvisional()
}

// AddMessageHandler registers a raw-frame handler; the token stays valid
// across session rebinds.
func (c *Client) AddMessageHandler(h transport.MessageHandler) int {
	return c.mux.AddMessageHandler(h)
}

// RemoveMessageHandler unregisters a raw-frame handler.
func (c *Client) RemoveMessageHandler(token int) { c.mux.RemoveMessageHandler(token) }

// AddStateHandler registers a connection-state handler.
func (c *Client) AddStateHandler(h transport.StateHandler) int {
	return c.mux.AddStateHandler(h)
}

// RemoveStateHandler unregisters a connection-state handler.
func (c *Client) RemoveStateHandler(token int) { c.mux.RemoveStateHandler(token) }

// OnActiveMessage registers the UI callback for appends to the active
// conversation.
func (c *Client) OnActiveMessage(fn func(models.Message)) { c.store.OnActiveAppend(fn) }

// Conversations returns all known conversations in creation order.
func (c *Client) Conversations() []models.Conversation { return c.store.Conversations() }

// ActiveConversation returns the active conversation, if any.
func (c *Client) ActiveConversation() (models.Conversation, bool) {
	id := c.store.ActiveID()
	if id == "" {
		return models.Conversation{}, false
	}
	return c.store.Conversation(id)
}

// Typing reports the assistant-is-typing indicator.
func (c *Client) Typing() bool { return c.store.Typing() }

// SessionID returns the currently bound session id.
func (c *Client) SessionID() string { return c.mux.SessionID() }

// Store exposes the conversation store for advanced callers.
func (c *Client) Store() *conversation.Store { return c.store }

func (c *Client) handleFrame(frame models.Frame) {
	if frame.Type() == models.TypeSessionCreated {
		if id := frame.SessionID(); id != "" {
			c.mux.AdoptSessionID(id)
		}
	}
	c.store.ApplyFrame(frame)
}
