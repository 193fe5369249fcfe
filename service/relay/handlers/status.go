package handlers

import (
	"PolyChat/protocol"
	"PolyChat/service/relay"
	"PolyChat/tools/decode"
	"PolyChat/tools/errs"
)

// StatusHandler updates the registry and tells everyone else. Presence is
// app-wide on purpose, unlike chat content which stays room-scoped.
type StatusHandler struct{}

func NewStatusHandler() relay.Handler { return &StatusHandler{} }

func (h *StatusHandler) Event() string { return protocol.EventUpdateStatus }

func (h *StatusHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	p, err := decode.Map[protocol.UpdateStatusPayload](f.Data)
	if err != nil || p.Status == "" {
		return errs.ErrBadPayload.WithDetail("update_status: missing status")
	}

	ctx.S.Registry().UpdatePresence(c.UserID, relay.Presence(p.Status))

	ctx.S.BroadcastExcept(c, protocol.EventUserStatusUpdate, protocol.UserStatusEvent{
		UserID:    c.UserID,
		Status:    p.Status,
		Timestamp: ctx.S.Now().UnixMilli(),
	})
	ctx.S.MirrorStatus(c.UserID, p.Status)
	return nil
}
