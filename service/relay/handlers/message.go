package handlers

import (
	"PolyChat/logger"
	"PolyChat/protocol"
	"PolyChat/service/relay"
	"PolyChat/tools/decode"
	"PolyChat/tools/errs"
)

// MessageHandler routes text messages: fan-out to the room, then ack the
// sender. Delivery is best-effort at-most-once; members whose transport is
// down at fan-out time simply miss the envelope.
type MessageHandler struct{}

func NewMessageHandler() relay.Handler { return &MessageHandler{} }

func (h *MessageHandler) Event() string { return protocol.EventSendMessage }

func (h *MessageHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	p, err := decode.Map[protocol.SendMessagePayload](f.Data)
	if err != nil || p.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("send_message: missing chatId")
	}

	env := protocol.MessageEnvelope{
		ID:          ctx.S.NextMessageID(),
		ChatID:      p.ChatID,
		SenderID:    c.UserID, // authenticated identity, not the claimed one
		RecipientID: p.RecipientID,
		Kind:        protocol.KindText,
		Text:        p.Text,
		Translation: p.Translation,
		Timestamp:   p.Timestamp,
	}
	if env.Timestamp == 0 {
		env.Timestamp = ctx.S.Now().UnixMilli()
	}

	deliver(ctx, c, env)
	return nil
}

// VoiceMessageHandler is the voice variant: same routing, envelope carries
// base64 audio and duration instead of text.
type VoiceMessageHandler struct{}

func NewVoiceMessageHandler() relay.Handler { return &VoiceMessageHandler{} }

func (h *VoiceMessageHandler) Event() string { return protocol.EventSendVoiceMessage }

func (h *VoiceMessageHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	p, err := decode.Map[protocol.SendVoiceMessagePayload](f.Data)
	if err != nil || p.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("send_voice_message: missing chatId")
	}

	env := protocol.MessageEnvelope{
		ID:          ctx.S.NextMessageID(),
		ChatID:      p.ChatID,
		SenderID:    c.UserID,
		RecipientID: p.RecipientID,
		Kind:        protocol.KindVoice,
		AudioData:   p.AudioData,
		Duration:    p.Duration,
		Translation: p.Translation,
		Timestamp:   p.Timestamp,
	}
	if env.Timestamp == 0 {
		env.Timestamp = ctx.S.Now().UnixMilli()
	}

	deliver(ctx, c, env)
	return nil
}

// deliver fans the envelope out and acks the sender. Both happen before the
// operation completes; their relative order is not part of the contract.
func deliver(ctx *relay.Context, c *relay.Conn, env protocol.MessageEnvelope) {
	ctx.S.RoomBroadcast(env.ChatID, protocol.EventNewMessage, env)

	ctx.S.SendTo(c, protocol.EventMessageSent, protocol.MessageSentAck{
		Success:   true,
		MessageID: env.ID,
		Timestamp: ctx.S.Now().UnixMilli(),
	})
	logger.Debugf("[message] relayed chat=%s id=%s kind=%s sender=%s", env.ChatID, env.ID, env.Kind, env.SenderID)
}
