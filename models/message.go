package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// DeliveryStatus tracks the outbound lifecycle of a message.
type DeliveryStatus string

const (
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusError   DeliveryStatus = "error"
)

// Attachment carries optional file metadata attached to a message.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Message is one entry in a conversation log.
type Message struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Sender     Sender         `json:"sender"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     DeliveryStatus `json:"status"`
	Attachment *Attachment    `json:"attachment,omitempty"`
}

// NewUserMessage builds an optimistic outbound message in sending state.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Content:   content,
		Sender:    SenderUser,
		Timestamp: time.Now().UTC(),
		Status:    StatusSending,
	}
}

// NewBotMessage builds an inbound message; delivered frames are always sent.
func NewBotMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Content:   content,
		Sender:    SenderBot,
		Timestamp: time.Now().UTC(),
		Status:    StatusSent,
	}
}

// Conversation is one logical thread: an ordered message log plus the
// metadata the conversation list renders from.
type Conversation struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProvisionalPrefix marks locally generated session ids that have not yet
// been confirmed by the server.
const ProvisionalPrefix = "temp-"

// NewProvisionalSessionID returns a placeholder session id used until the
// server assigns a real one via session_created.
func NewProvisionalSessionID() string {
	return ProvisionalPrefix + uuid.New().String()
}

// IsProvisionalSessionID reports whether id is a local placeholder.
func IsProvisionalSessionID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}
