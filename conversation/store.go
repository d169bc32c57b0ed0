// Package conversation keeps the per-session conversation logs: ordered,
// deduplicated message sequences merged from local optimistic sends and
// normalized inbound events.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

// Store holds every conversation the client knows about, keyed by session
// id, plus the active-session pointer and the typing indicator. The read
// goroutine of the transport and the UI goroutine both touch it, so all
// access goes through the lock.
type Store struct {
	mu     sync.RWMutex
	convs  map[string]*models.Conversation
	order  []string // session ids in creation order
	active string
	typing bool

	log      *zap.Logger
	policy   *bluemonday.Policy
	onActive func(models.Message) // invoked for appends to the active conversation
}

// NewStore builds an empty store.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		convs:  make(map[string]*models.Conversation),
		log:    log,
		policy: bluemonday.StrictPolicy(),
	}
}

// OnActiveAppend registers a callback invoked whenever a message lands in
// the currently active conversation. The UI uses it to extend the
// visible message list and scroll to the bottom.
func (s *Store) OnActiveAppend(fn func(models.Message)) {
	s.mu.Lock()
	s.onActive = fn
	s.mu.Unlock()
}

// StartProvisional creates a fresh conversation under a locally generated
// placeholder id and makes it active. The id is rewritten in place once
// the server confirms the session.
func (s *Store) StartProvisional() models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &models.Conversation{
		SessionID: models.NewProvisionalSessionID(),
		UpdatedAt: time.Now().UTC(),
	}
	s.convs[conv.SessionID] = conv
	s.order = append(s.order, conv.SessionID)
	s.active = conv.SessionID
	s.log.Debug("provisional conversation started", zap.String("session_id", conv.SessionID))
	return *conv
}

// Ensure creates an empty conversation for sessionID if none exists.
func (s *Store) Ensure(sessionID string) {
	s.mu.Lock()
	s.ensureLocked(sessionID)
	s.mu.Unlock()
}

func (s *Store) ensureLocked(sessionID string) *models.Conversation {
	if conv, ok := s.convs[sessionID]; ok {
		return conv
	}
	conv := &models.Conversation{SessionID: sessionID, UpdatedAt: time.Now().UTC()}
	s.convs[sessionID] = conv
	s.order = append(s.order, sessionID)
	return conv
}

// SetActive switches the active-session pointer.
func (s *Store) SetActive(sessionID string) {
	s.mu.Lock()
	s.active = sessionID
	s.mu.Unlock()
}

// ActiveID returns the active session id ("" when none selected).
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// AppendLocal appends an optimistic user message in sending state. The
// conversation is created if it does not exist yet.
func (s *Store) AppendLocal(sessionID, content string) models.Message {
	msg := models.NewUserMessage(content)
	s.mu.Lock()
	conv := s.ensureLocked(sessionID)
	conv.Messages = append(conv.Messages, msg)
	conv.Preview = s.stripHTML(content)
	conv.UpdatedAt = msg.Timestamp
	hook := s.hookFor(sessionID)
	s.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return msg
}

// SetStatus updates the delivery status of a message in a conversation.
func (s *Store) SetStatus(sessionID, messageID string, status models.DeliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[sessionID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Status = status
			return
		}
	}
}

// SetStatusByID updates a message's delivery status wherever it lives.
// Used for optimistic sends whose conversation may have been rebound to a
// confirmed session id in the meantime.
func (s *Store) SetStatusByID(messageID string, status models.DeliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.convs {
		for i := range conv.Messages {
			if conv.Messages[i].ID == messageID {
				conv.Messages[i].Status = status
				return
			}
		}
	}
}

// ConfirmSession rewrites the most recently created provisional
// conversation to the server-confirmed id, atomically: after the rebind
// exactly one conversation exists for the thread, under the confirmed id,
// and the active pointer follows if it pointed at the provisional id.
// Returns false when no provisional conversation exists.
func (s *Store) ConfirmSession(confirmedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var provisional string
	for i := len(s.order) - 1; i >= 0; i-- {
		if models.IsProvisionalSessionID(s.order[i]) {
			provisional = s.order[i]
			break
		}
	}
	if provisional == "" {
		return false
	}

	conv := s.convs[provisional]
	conv.SessionID = confirmedID
	delete(s.convs, provisional)
	s.convs[confirmedID] = conv
	for i, id := range s.order {
		if id == provisional {
			s.order[i] = confirmedID
			break
		}
	}
	if s.active == provisional {
		s.active = confirmedID
	}
	s.log.Debug("session confirmed",
		zap.String("provisional", provisional), zap.String("session_id", confirmedID))
	return true
}

// Seed loads prior conversations retrieved from the history collaborator.
// Existing conversations are left untouched.
func (s *Store) Seed(records []models.ConversationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.SessionID == "" {
			continue
		}
		if _, ok := s.convs[rec.SessionID]; ok {
			continue
		}
		conv := &models.Conversation{SessionID: rec.SessionID}
		for _, m := range rec.Messages {
			msg := models.Message{
				ID:        rec.SessionID + "-" + m.Timestamp.UTC().Format(time.RFC3339Nano),
				Content:   m.Content,
				Sender:    models.Sender(m.Sender),
				Timestamp: m.Timestamp,
				Status:    models.StatusSent,
			}
			conv.Messages = append(conv.Messages, msg)
			conv.Preview = s.stripHTML(m.Content)
			conv.UpdatedAt = m.Timestamp
		}
		s.convs[rec.SessionID] = conv
		s.order = append(s.order, rec.SessionID)
	}
}

// Conversation returns a copy of the conversation for sessionID.
func (s *Store) Conversation(sessionID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[sessionID]
	if !ok {
		return models.Conversation{}, false
	}
	return copyConversation(conv), true
}

// Conversations returns copies of all conversations in creation order.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyConversation(s.convs[id]))
	}
	return out
}

// Typing reports whether the assistant-is-typing indicator is on.
func (s *Store) Typing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typing
}

func (s *Store) setTyping(on bool) {
	s.mu.Lock()
	s.typing = on
	s.mu.Unlock()
}

// hookFor must be called with the lock held.
func (s *Store) hookFor(sessionID string) func(models.Message) {
	if s.onActive != nil && sessionID == s.active {
		return s.onActive
	}
	return nil
}

func (s *Store) stripHTML(content string) string {
	return strings.TrimSpace(s.policy.Sanitize(content))
}

func copyConversation(conv *models.Conversation) models.Conversation {
	out := *conv
	out.Messages = make([]models.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out
}
