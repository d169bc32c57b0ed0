package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

const (
	sessionPrefix   = "session:"
	userIndexPrefix = "user_sessions:"
)

// HistoryStore persists per-session conversation history for the dev
// backend and backs the history HTTP endpoint.
type HistoryStore interface {
	Append(ctx context.Context, chatbotID, userID, sessionID string, msg models.MessageRecord) error
	Load(ctx context.Context, sessionID string) ([]models.MessageRecord, error)
	Sessions(ctx context.Context, chatbotID, userID string) ([]string, error)
}

// RedisStore keeps history in Redis: one JSON blob per session with a TTL
// and a rolling window of recent messages, plus a per-user session index.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	window int
}

// NewRedisStore builds a store over rdb. window bounds the number of
// messages kept per session; ttl bounds session lifetime.
func NewRedisStore(rdb *redis.Client, window int, ttl time.Duration) *RedisStore {
	if window <= 0 {
		window = 50
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl, window: window}
}

func (s *RedisStore) Append(ctx context.Context, chatbotID, userID, sessionID string, msg models.MessageRecord) error {
	history, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history, msg)
	if len(history) > s.window {
		history = history[len(history)-s.window:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	key := sessionPrefix + sessionID
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	indexKey := userIndexPrefix + chatbotID + ":" + userID
	if err := s.rdb.SAdd(ctx, indexKey, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return s.rdb.Expire(ctx, indexKey, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]models.MessageRecord, error) {
	data, err := s.rdb.Get(ctx, sessionPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return []models.MessageRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var history []models.MessageRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return history, nil
}

func (s *RedisStore) Sessions(ctx context.Context, chatbotID, userID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, userIndexPrefix+chatbotID+":"+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// MemoryStore is the in-process HistoryStore used by tests and
// redis-less dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.MessageRecord
	byUser   map[string][]string
	window   int
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(window int) *MemoryStore {
	if window <= 0 {
		window = 50
	}
	return &MemoryStore{
		sessions: make(map[string][]models.MessageRecord),
		byUser:   make(map[string][]string),
		window:   window,
	}
}

func (s *MemoryStore) Append(ctx context.Context, chatbotID, userID, sessionID string, msg models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], msg)
	if len(history) > s.window {
		history = history[len(history)-s.window:]
	}
	s.sessions[sessionID] = history

	indexKey := chatbotID + ":" + userID
	for _, id := range s.byUser[indexKey] {
		if id == sessionID {
			return nil
		}
	}
	s.byUser[indexKey] = append(s.byUser[indexKey], sessionID)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]models.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.sessions[sessionID]
	out := make([]models.MessageRecord, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) Sessions(ctx context.Context, chatbotID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[chatbotID+":"+userID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}
