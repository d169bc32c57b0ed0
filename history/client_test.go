package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConversationsFetchesAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/bot-1/history", r.URL.Path)
		require.Equal(t, "user one", r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"conversations":[
			{"session_id":"s-1","messages":[
				{"sender":"user","content":"hi","timestamp":"2026-08-30T10:00:00Z"},
				{"sender":"bot","content":"hello","timestamp":"2026-08-30T10:00:01Z"}
			]},
			{"session_id":"s-2","messages":[]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	records, err := c.Conversations(context.Background(), "bot-1", "user one")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "s-1", records[0].SessionID)
	require.Len(t, records[0].Messages, 2)
	require.Equal(t, "bot", records[0].Messages[1].Sender)
}

func TestConversationsNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.Conversations(context.Background(), "bot-1", "u")
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestConversationsBadJSONIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conversations": not-json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.Conversations(context.Background(), "bot-1", "u")
	require.Error(t, err)
}

func TestConversationsContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.Conversations(ctx, "bot-1", "u")
	require.Error(t, err)
}
