package handlers

import (
	"PolyChat/logger"
	"PolyChat/protocol"
	"PolyChat/service/relay"
	"PolyChat/tools/decode"
	"PolyChat/tools/errs"
)

type JoinChatHandler struct{}

func NewJoinChatHandler() relay.Handler { return &JoinChatHandler{} }

func (h *JoinChatHandler) Event() string { return protocol.EventJoinChat }

func (h *JoinChatHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	p, err := decode.Map[protocol.JoinChatPayload](f.Data)
	if err != nil || p.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("join_chat: missing chatId")
	}
	ctx.S.JoinRoom(p.ChatID, c)
	logger.Debugf("[room] join user=%s chat=%s", c.UserID, p.ChatID)
	return nil
}

type LeaveChatHandler struct{}

func NewLeaveChatHandler() relay.Handler { return &LeaveChatHandler{} }

func (h *LeaveChatHandler) Event() string { return protocol.EventLeaveChat }

func (h *LeaveChatHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	p, err := decode.Map[protocol.LeaveChatPayload](f.Data)
	if err != nil || p.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("leave_chat: missing chatId")
	}
	ctx.S.LeaveRoom(p.ChatID, c)
	logger.Debugf("[room] leave user=%s chat=%s", c.UserID, p.ChatID)
	return nil
}
