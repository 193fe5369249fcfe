package handlers

import (
	"context"
	"time"

	"PolyChat/logger"
	"PolyChat/protocol"
	"PolyChat/service/relay"
	"PolyChat/tools/decode"
	"PolyChat/tools/safe"
)

// closeDelay gives the write pump a chance to flush the auth_failed frame
// before the transport is torn down.
const closeDelay = 200 * time.Millisecond

type AuthHandler struct{}

func NewAuthHandler() relay.Handler { return &AuthHandler{} }

func (h *AuthHandler) Event() string { return protocol.EventAuthenticate }

func (h *AuthHandler) Handle(ctx *relay.Context, f *protocol.Frame, c *relay.Conn) error {
	ap, err := decode.Map[protocol.AuthPayload](f.Data)
	if err != nil {
		logger.Warnf("[auth] bad payload transport=%s err=%v", c.TransportID, err)
		return nil
	}

	vctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	userID, verr := ctx.S.Verifier().Verify(vctx, ap.Token)
	cancel()
	if verr != nil {
		logger.Infof("[auth] rejected transport=%s user=%s err=%v", c.TransportID, ap.UserID, verr)
		h.reject(ctx, c, "invalid token")
		return nil
	}
	if ap.UserID != "" && ap.UserID != userID {
		logger.Infof("[auth] identity mismatch transport=%s claimed=%s token=%s", c.TransportID, ap.UserID, userID)
		h.reject(ctx, c, "identity mismatch")
		return nil
	}

	// A second authenticate for the same user supersedes the previous
	// transport mapping; the registry handles the stale bookkeeping.
	c.UserID = userID
	c.Authorized = true
	ctx.S.Registry().Register(userID, c.TransportID)

	ctx.S.BroadcastExcept(c, protocol.EventUserStatusUpdate, protocol.UserStatusEvent{
		UserID:    userID,
		Status:    protocol.StatusOnline,
		Timestamp: ctx.S.Now().UnixMilli(),
	})
	ctx.S.MirrorStatus(userID, protocol.StatusOnline)

	logger.Infof("[auth] authenticated user=%s transport=%s", userID, c.TransportID)
	return nil
}

// reject signals the failure and closes. The client must not retry with the
// same token; a fresh connect with a fresh token starts over.
func (h *AuthHandler) reject(ctx *relay.Context, c *relay.Conn, reason string) {
	ctx.S.SendTo(c, protocol.EventAuthFailed, protocol.AuthFailedEvent{Reason: reason})
	safe.Go("authReject", func() {
		time.Sleep(closeDelay)
		ctx.S.Teardown(c)
	})
}
