package models

import "time"

// Outbound message types (client → server).
const (
	TypeMessage    = "message"
	TypeNewSession = "new_session"
	TypePing       = "ping"
)

// Inbound event types (server → client).
const (
	TypeResponse       = "response"
	TypeSessionCreated = "session_created"
	TypeTypingStart    = "typing_start"
	TypeTypingEnd      = "typing_end"
)

// Outbound is the client → server wire message. Content is a pointer so
// pings serialize it as an explicit null. Timestamp is stamped by the
// transport at send time.
type Outbound struct {
	Type      string  `json:"type"`
	Content   *string `json:"content"`
	ChatbotID string  `json:"chatbot_id,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Text returns a pointer to s for use as an Outbound content field.
func Text(s string) *string { return &s }

// Frame is a decoded inbound wire message. Server paths emit several
// shapes (flat fields, fields nested under "data", content wrapped in a
// fenced JSON block), so the frame stays schemaless and helpers pull the
// fields that are known.
type Frame map[string]any

// Type returns the frame's type field, or "" when absent.
func (f Frame) Type() string {
	s, _ := f.String("type")
	return s
}

// SessionID returns the frame's session_id field, or "" when absent.
func (f Frame) SessionID() string {
	s, _ := f.String("session_id")
	return s
}

// String returns the named field when it is present and a string.
func (f Frame) String(key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Data returns the nested data object when present.
func (f Frame) Data() (Frame, bool) {
	v, ok := f["data"]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return Frame(m), true
}

// MessageRecord is the history API's representation of one stored message.
type MessageRecord struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRecord is the history API's representation of a prior
// conversation thread.
type ConversationRecord struct {
	SessionID string          `json:"session_id"`
	Messages  []MessageRecord `json:"messages"`
}
