// Package history retrieves prior conversations from the chat history
// HTTP API, used to seed the conversation store at startup.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

const requestTimeout = 15 * time.Second

// Client calls the external chat history API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient builds a history client for the API at baseURL.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

// Conversations fetches the prior conversations for a chatbot and user.
func (c *Client) Conversations(ctx context.Context, chatbotID, userID string) ([]models.ConversationRecord, error) {
	endpoint := fmt.Sprintf("%s/api/chat/%s/history?user_id=%s",
		c.baseURL, url.PathEscape(chatbotID), url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history API returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Conversations []models.ConversationRecord `json:"conversations"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	c.log.Debug("history loaded",
		zap.String("chatbot_id", chatbotID), zap.Int("conversations", len(payload.Conversations)))
	return payload.Conversations, nil
}
