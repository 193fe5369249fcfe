package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame is the outer envelope of every websocket text message. Data stays a
// generic map on the inbound path; handlers decode it into a typed payload
// with tools/decode.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// ParseFrame decodes a raw websocket text message into a Frame.
func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame without event")
	}
	return f, nil
}

// EncodeFrame serializes an outbound event with a typed payload.
func EncodeFrame(event string, payload any) ([]byte, error) {
	out := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: payload}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal frame event=%s: %w", event, err)
	}
	return b, nil
}
