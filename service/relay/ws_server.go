package relay

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"PolyChat/logger"
	"PolyChat/protocol"
	"PolyChat/tools/safe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the HTTP request and runs the connection's read loop
// until the transport dies. One goroutine reads, one writes; handlers run on
// the read goroutine so per-connection ordering is arrival order.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[relay] upgrade websocket error: %v", err)
		return
	}

	conn := newConn(uuid.NewString(), ws, s.conf.SendQueueSize)
	ws.SetReadLimit(s.conf.ReadLimit)
	s.addConn(conn)
	safe.Go("writePump", func() {
		conn.writePump(s.conf.PingInterval, s.conf.WriteTimeout)
	})
	logger.Debugf("[relay] connected transport=%s remote=%s", conn.TransportID, ws.RemoteAddr())

	defer s.Teardown(conn)

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debugf("[relay] peer closed transport=%s err=%v", conn.TransportID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Debugf("[relay] read timeout transport=%s err=%v", conn.TransportID, rerr)
			} else {
				logger.Debugf("[relay] read err transport=%s err=%v", conn.TransportID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := protocol.ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warnf("[relay] bad frame transport=%s err=%v sample=%q", conn.TransportID, perr, sample)
			continue
		}

		// Pre-auth connections may only authenticate; anything else is
		// silently dropped.
		if !conn.Authorized && f.Event != protocol.EventAuthenticate {
			logger.Debugf("[relay] drop pre-auth event=%s transport=%s", f.Event, conn.TransportID)
			continue
		}

		if err := s.disp.Dispatch(&Context{S: s}, f, conn); err != nil {
			logger.Warnf("[relay] handler event=%s transport=%s err=%v", f.Event, conn.TransportID, err)
			continue
		}
	}
}
