package conversation

import (
	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

// textAliases are the keys that may carry display text on a message
// frame, checked first under the nested data object and then flat, in
// priority order.
var textAliases = []string{"content", "answer", "response"}

// ApplyFrame merges one normalized inbound frame into the store. Unknown
// event types are ignored; events that cannot be attributed to a
// conversation are dropped with a warning rather than guessed into the
// wrong thread.
func (s *Store) ApplyFrame(frame models.Frame) {
	switch frame.Type() {
	case models.TypeSessionCreated:
		s.applySessionCreated(frame)
	case models.TypeMessage, models.TypeResponse:
		s.applyMessage(frame)
	case models.TypeTypingStart:
		s.setTyping(true)
	case models.TypeTypingEnd:
		s.setTyping(false)
	default:
		// Unrecognized types are not an error.
	}
}

func (s *Store) applySessionCreated(frame models.Frame) {
	confirmedID := frame.SessionID()
	if confirmedID == "" {
		s.log.Warn("session_created event without session id")
		return
	}
	if !s.ConfirmSession(confirmedID) {
		// No provisional thread pending; treat it as a resumed session.
		s.Ensure(confirmedID)
	}
}

func (s *Store) applyMessage(frame models.Frame) {
	text, ok := extractText(frame)
	if !ok {
		s.log.Warn("message event without extractable text", zap.String("type", frame.Type()))
		return
	}

	sessionID := frame.SessionID()
	if sessionID == "" {
		sessionID = s.ActiveID()
	}
	if sessionID == "" {
		s.log.Warn("dropping message with no addressable conversation")
		return
	}

	msg := models.NewBotMessage(text)

	s.mu.Lock()
	conv := s.ensureLocked(sessionID)
	if containsContent(conv, text) {
		s.mu.Unlock()
		s.log.Debug("suppressing duplicate inbound message", zap.String("session_id", sessionID))
		return
	}
	conv.Messages = append(conv.Messages, msg)
	conv.Preview = s.stripHTML(text)
	conv.UpdatedAt = msg.Timestamp
	hook := s.hookFor(sessionID)
	s.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
}

// extractText pulls display text from the first present of data.content,
// data.answer, data.response, content, answer, response.
func extractText(frame models.Frame) (string, bool) {
	if data, ok := frame.Data(); ok {
		for _, key := range textAliases {
			if s, ok := data.String(key); ok {
				return s, true
			}
		}
	}
	for _, key := range textAliases {
		if s, ok := frame.String(key); ok {
			return s, true
		}
	}
	return "", false
}

// containsContent reports whether the conversation already holds a
// message with identical text, the idempotency guard against re-delivery.
func containsContent(conv *models.Conversation, text string) bool {
	for i := range conv.Messages {
		if conv.Messages[i].Content == text {
			return true
		}
	}
	return false
}
