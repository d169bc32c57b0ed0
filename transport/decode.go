package transport

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
)

// responseAliases are the keys, in priority order, that may carry the
// response text inside a fenced-JSON content payload.
var responseAliases = []string{"response", "content", "answer", "message"}

// decodeFrame turns raw wire bytes into a Frame. Malformed or empty
// payloads are logged and dropped. When the content field carries a
// fenced JSON document, the inner document is parsed and the response
// text extracted into a normalized envelope; if the inner parse fails the
// outer frame is forwarded unmodified rather than dropped.
func decodeFrame(data []byte, log *zap.Logger) (models.Frame, bool) {
	if len(strings.TrimSpace(string(data))) == 0 {
		log.Warn("dropping empty frame")
		return nil, false
	}

	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn("dropping malformed frame", zap.Error(err))
		return nil, false
	}

	raw, present := frame["content"]
	if !present {
		return frame, true
	}
	content, isString := raw.(string)
	if !isString {
		return frame, true
	}
	inner, ok := stripJSONFence(content)
	if !ok {
		return frame, true
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(inner), &doc); err != nil {
		log.Debug("fenced content is not valid JSON, forwarding raw frame", zap.Error(err))
		return frame, true
	}

	text, ok := firstStringAlias(doc, responseAliases)
	if !ok {
		return frame, true
	}

	normalized := models.Frame{
		"type":    frame.Type(),
		"content": text,
	}
	if sid := frame.SessionID(); sid != "" {
		normalized["session_id"] = sid
	}
	return normalized, true
}

// stripJSONFence removes a ```json ... ``` wrapper and returns the inner
// document. Returns false when the string is not fenced.
func stripJSONFence(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```json") {
		return "", false
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	end := strings.LastIndex(trimmed, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(trimmed[:end]), true
}

func firstStringAlias(doc map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := doc[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
