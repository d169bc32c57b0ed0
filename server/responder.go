package server

import (
	"context"
	"encoding/json"
	"fmt"
)

// Responder produces the bot reply for an inbound user message.
type Responder interface {
	Respond(ctx context.Context, sessionID, content string) string
}

// EchoResponder is the default dev responder.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, _, content string) string {
	return "You said: " + content
}

// FencedResponder wraps another responder's output in a ```json fenced
// document, the shape some model backends stream, so clients can be
// exercised against the fenced-content decode path.
type FencedResponder struct {
	Inner Responder
	Key   string // alias key for the reply text, defaults to "answer"
}

func (r FencedResponder) Respond(ctx context.Context, sessionID, content string) string {
	inner := r.Inner
	if inner == nil {
		inner = EchoResponder{}
	}
	key := r.Key
	if key == "" {
		key = "answer"
	}
	doc, _ := json.Marshal(map[string]string{key: inner.Respond(ctx, sessionID, content)})
	return fmt.Sprintf("```json\n%s\n```", doc)
}
