// Package server is the development chat backend: a websocket peer
// implementing the wire protocol the realtime client speaks, with
// pluggable bot responders and Redis- or memory-backed history.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

// Options configure the dev backend.
type Options struct {
	Store          HistoryStore
	Responder      Responder
	AllowedOrigins []string
	TypingDelay    time.Duration
	Logger         *zap.Logger
}

// Server serves the websocket chat endpoint and the history API.
type Server struct {
	store          HistoryStore
	responder      Responder
	allowedOrigins map[string]bool
	typingDelay    time.Duration
	log            *zap.Logger
	upgrader       websocket.Upgrader
}

// New builds a Server. A nil store defaults to an in-memory one and a nil
// responder to the echo responder.
func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = NewMemoryStore(0)
	}
	if opts.Responder == nil {
		opts.Responder = EchoResponder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	origins := make(map[string]bool)
	for _, o := range opts.AllowedOrigins {
		origins[o] = true
	}
	s := &Server{
		store:          opts.Store,
		responder:      opts.Responder,
		allowedOrigins: origins,
		typingDelay:    opts.TypingDelay,
		log:            opts.Logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Routes returns the HTTP mux for the backend.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat/", s.handleWS)
	mux.HandleFunc("/api/chat/", s.handleHistory)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // allow non-browser clients
	}
	return s.allowedOrigins[origin]
}

type wsInbound struct {
	Type      string  `json:"type"`
	Content   *string `json:"content"`
	ChatbotID string  `json:"chatbot_id"`
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
	Timestamp string  `json:"timestamp"`
}

type wsReply struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	chatbotID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/chat/"), "/")
	if chatbotID == "" {
		http.Error(w, "missing chatbot id", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}
	sessionID := r.URL.Query().Get("session_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.log.Info("client connected",
		zap.String("chatbot_id", chatbotID),
		zap.String("user_id", userID),
		zap.String("session_id", sessionID))

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("invalid message format", zap.Error(err))
			continue
		}

		switch msg.Type {
		case models.TypePing:
			// Keepalive only.

		case models.TypeNewSession:
			sessionID = uuid.New().String()
			if err := conn.WriteJSON(wsReply{Type: models.TypeSessionCreated, SessionID: sessionID}); err != nil {
				s.log.Warn("failed to send session_created", zap.Error(err))
				return
			}
			if err := s.respond(ctx, conn, chatbotID, userID, sessionID, deref(msg.Content)); err != nil {
				return
			}

		case models.TypeMessage:
			if msg.SessionID != "" {
				sessionID = msg.SessionID
			}
			if sessionID == "" {
				s.log.Warn("message without session", zap.String("user_id", userID))
				continue
			}
			if err := s.respond(ctx, conn, chatbotID, userID, sessionID, deref(msg.Content)); err != nil {
				return
			}

		default:
			s.log.Debug("ignoring unknown message type", zap.String("type", msg.Type))
		}
	}
}

// respond stores the user message, streams the typing indicator around
// the bot reply, and stores the reply.
func (s *Server) respond(ctx context.Context, conn *websocket.Conn, chatbotID, userID, sessionID, content string) error {
	if content == "" {
		return nil
	}
	now := time.Now().UTC()
	if err := s.store.Append(ctx, chatbotID, userID, sessionID, models.MessageRecord{
		Sender: string(models.SenderUser), Content: content, Timestamp: now,
	}); err != nil {
		s.log.Warn("failed to store user message", zap.Error(err))
	}

	if err := conn.WriteJSON(wsReply{Type: models.TypeTypingStart, SessionID: sessionID}); err != nil {
		return err
	}
	if s.typingDelay > 0 {
		time.Sleep(s.typingDelay)
	}

	answer := s.responder.Respond(ctx, sessionID, content)
	if err := s.store.Append(ctx, chatbotID, userID, sessionID, models.MessageRecord{
		Sender: string(models.SenderBot), Content: answer, Timestamp: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to store bot message", zap.Error(err))
	}

	if err := conn.WriteJSON(wsReply{Type: models.TypeMessage, SessionID: sessionID, Content: answer}); err != nil {
		return err
	}
	return conn.WriteJSON(wsReply{Type: models.TypeTypingEnd, SessionID: sessionID})
}

// handleHistory serves GET /api/chat/{chatbot_id}/history?user_id=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "history" || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	chatbotID := parts[0]
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	ids, err := s.store.Sessions(r.Context(), chatbotID, userID)
	if err != nil {
		s.log.Warn("failed to list sessions", zap.Error(err))
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	conversations := make([]models.ConversationRecord, 0, len(ids))
	for _, id := range ids {
		messages, err := s.store.Load(r.Context(), id)
		if err != nil {
			s.log.Warn("failed to load session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		conversations = append(conversations, models.ConversationRecord{SessionID: id, Messages: messages})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"conversations": conversations})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
