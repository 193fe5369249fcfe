package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"send_message","data":{"chatId":"chat1","text":"hola"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventSendMessage, f.Event)
	assert.Equal(t, "chat1", f.Data["chatId"])
	assert.Equal(t, "hola", f.Data["text"])
}

func TestParseFrameNoData(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"leave_chat"}`))
	require.NoError(t, err)
	assert.Equal(t, EventLeaveChat, f.Event)
	assert.Nil(t, f.Data)
}

func TestParseFrameRejectsMissingEvent(t *testing.T) {
	_, err := ParseFrame([]byte(`{"data":{"x":1}}`))
	assert.Error(t, err)
}

func TestParseFrameRejectsBadJSON(t *testing.T) {
	_, err := ParseFrame([]byte(`{broken`))
	assert.Error(t, err)
}

func TestEncodeFrameWireShape(t *testing.T) {
	b, err := EncodeFrame(EventUserStatusUpdate, UserStatusEvent{
		UserID: "alice", Status: StatusOnline, Timestamp: 1735689600123,
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, EventUserStatusUpdate, out["event"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "alice", data["userId"])
	assert.Equal(t, StatusOnline, data["status"])
	assert.Equal(t, float64(1735689600123), data["timestamp"])
}

func TestEncodeThenParseRoundTrip(t *testing.T) {
	b, err := EncodeFrame(EventNewMessage, MessageEnvelope{
		ID: "42", ChatID: "chat1", SenderID: "alice", Kind: KindText, Text: "hi", Timestamp: 7,
	})
	require.NoError(t, err)

	f, err := ParseFrame(b)
	require.NoError(t, err)
	assert.Equal(t, EventNewMessage, f.Event)
	assert.Equal(t, "42", f.Data["id"])
	assert.Equal(t, KindText, f.Data["type"])
}
