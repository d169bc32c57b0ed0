package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeFrameFencedJSON(t *testing.T) {
	raw := []byte(`{"type":"response","session_id":"abc123","content":"` + "```json\\n{\\\"answer\\\":\\\"42\\\"}\\n```" + `"}`)

	frame, ok := decodeFrame(raw, zap.NewNop())
	require.True(t, ok)
	require.Equal(t, "response", frame.Type())
	require.Equal(t, "abc123", frame.SessionID())

	content, ok := frame.String("content")
	require.True(t, ok)
	require.Equal(t, "42", content)
}

func TestDecodeFrameFencedAliasPriority(t *testing.T) {
	raw := []byte(`{"type":"response","content":"` +
		"```json\\n{\\\"answer\\\":\\\"second\\\",\\\"response\\\":\\\"first\\\"}\\n```" + `"}`)

	frame, ok := decodeFrame(raw, zap.NewNop())
	require.True(t, ok)
	content, _ := frame.String("content")
	require.Equal(t, "first", content, "response outranks answer")
}

func TestDecodeFrameFencedInvalidInnerForwardsRaw(t *testing.T) {
	raw := []byte(`{"type":"response","content":"` + "```json\\nnot json at all\\n```" + `"}`)

	frame, ok := decodeFrame(raw, zap.NewNop())
	require.True(t, ok, "bad inner JSON must not drop the frame")
	content, _ := frame.String("content")
	require.Contains(t, content, "not json at all", "outer frame forwarded unmodified")
}

func TestDecodeFramePlainContentPassthrough(t *testing.T) {
	raw := []byte(`{"type":"message","session_id":"s1","content":"hello there"}`)

	frame, ok := decodeFrame(raw, zap.NewNop())
	require.True(t, ok)
	content, _ := frame.String("content")
	require.Equal(t, "hello there", content)
}

func TestDecodeFrameNonStringContentPassthrough(t *testing.T) {
	raw := []byte(`{"type":"message","content":{"nested":true}}`)

	frame, ok := decodeFrame(raw, zap.NewNop())
	require.True(t, ok)
	_, isString := frame.String("content")
	require.False(t, isString)
}

func TestDecodeFrameNoContentPassthrough(t *testing.T) {
	raw := []byte(`{"type":"session_created","session_id":"abc123"}`)

	frame, ok := decodeFrame(raw, zap.NewNop())
	require.True(t, ok)
	require.Equal(t, "session_created", frame.Type())
	require.Equal(t, "abc123", frame.SessionID())
}

func TestDecodeFrameMalformedDropped(t *testing.T) {
	for _, raw := range []string{"", "   ", "{not json", "[1,2,3"} {
		_, ok := decodeFrame([]byte(raw), zap.NewNop())
		require.False(t, ok, "payload %q must be dropped", raw)
	}
}

func TestStripJSONFence(t *testing.T) {
	inner, ok := stripJSONFence("```json\n{\"a\":1}\n```")
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, inner)

	_, ok = stripJSONFence(`{"a":1}`)
	require.False(t, ok)

	_, ok = stripJSONFence("```json\n{\"a\":1}")
	require.False(t, ok, "unterminated fence is not fenced content")
}
