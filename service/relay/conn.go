package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PolyChat/logger"
)

// Conn is one physical websocket connection. State moves strictly
// unauthenticated -> authenticated -> closed; UserID and Authorized are only
// written from the connection's own read goroutine.
type Conn struct {
	TransportID string
	UserID      string
	Authorized  bool

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	tearOnce  sync.Once
	done      chan struct{}
}

func newConn(transportID string, ws *websocket.Conn, sendQueueSize int) *Conn {
	return &Conn{
		TransportID: transportID,
		ws:          ws,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// enqueue hands a frame to the writer goroutine without blocking. Slow
// consumers lose frames rather than stalling fan-out (at-most-once delivery).
func (c *Conn) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		logger.Warnf("[relay] send queue full, drop frame transport=%s user=%s", c.TransportID, c.UserID)
		return false
	}
}

// shutdown closes the websocket and stops the writer exactly once. Safe to
// call from both the read loop and the write pump.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump is the single writer for this connection: business frames from
// the send queue plus periodic pings. gorilla/websocket does not allow
// concurrent writers, so everything funnels through here.
func (c *Conn) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("[relay] write err transport=%s user=%s err=%v", c.TransportID, c.UserID, err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				logger.Debugf("[relay] ping err transport=%s user=%s err=%v", c.TransportID, c.UserID, err)
				return
			}
		}
	}
}
