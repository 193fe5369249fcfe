package handlers

import (
	"PolyChat/protocol"
	"PolyChat/service/relay"
	"PolyChat/tools/decode"
	"PolyChat/tools/errs"
)

// TypingHandler relays typing indicators to the room minus the sender. No
// ack, no retention; an empty room swallows the signal.
type TypingHandler struct{}

func NewTypingHandler() relay.Handler { return &TypingHandler{} }

func (h *TypingHandler) Event() string { return protocol.EventTypingIndicator }

func (h *TypingHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	p, err := decode.Map[protocol.TypingIndicatorPayload](f.Data)
	if err != nil || p.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("typing_indicator: missing chatId")
	}

	ctx.S.RoomBroadcastExcept(p.ChatID, c, protocol.EventUserTyping, protocol.UserTypingEvent{
		ChatID:    p.ChatID,
		SenderID:  c.UserID,
		IsTyping:  p.IsTyping,
		Timestamp: ctx.S.Now().UnixMilli(),
	})
	return nil
}
