package relay

import (
	"context"
	"sync"
	"time"

	"PolyChat/logger"
	"PolyChat/protocol"
	"PolyChat/service/auth"
	"PolyChat/service/storage"
	"PolyChat/tools/ids"
)

// Config tunes one relay instance. Zero values are normalized to the defaults
// the demo deployment runs with.
type Config struct {
	FanoutWorkers int
	FanoutQueue   int
	SendQueueSize int
	PingInterval  time.Duration
	WriteTimeout  time.Duration
	ReadLimit     int64
	Clock         func() time.Time
}

func (c *Config) norm() {
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Server owns the registry, room membership and every live transport. It
// routes events, nothing more: no persistence, no retries, no replay. All
// state is rebuilt by clients re-authenticating and re-joining after a
// restart.
type Server struct {
	conf     Config
	reg      *Registry
	rooms    *rooms
	disp     *Dispatcher
	fanout   *Fanout
	verifier auth.TokenVerifier
	mirror   *storage.Mirror // optional, may be nil

	mu    sync.RWMutex
	conns map[string]*Conn // transportID -> conn, for app-wide broadcasts
}

func NewServer(conf Config, verifier auth.TokenVerifier) *Server {
	conf.norm()
	return &Server{
		conf:     conf,
		reg:      NewRegistryWithConf(RegistryConf{Clock: conf.Clock}),
		rooms:    newRooms(),
		disp:     NewDispatcher(),
		fanout:   NewFanout(conf.FanoutWorkers, conf.FanoutQueue),
		verifier: verifier,
		conns:    make(map[string]*Conn),
	}
}

// SetMirror attaches the optional Redis presence mirror.
func (s *Server) SetMirror(m *storage.Mirror) { s.mirror = m }

func (s *Server) Disp() *Dispatcher            { return s.disp }
func (s *Server) Registry() *Registry          { return s.reg }
func (s *Server) Verifier() auth.TokenVerifier { return s.verifier }

func (s *Server) Now() time.Time        { return s.conf.Clock() }
func (s *Server) NextMessageID() string { return ids.GenerateString() }

// MirrorStatus best-effort publishes presence to the external mirror.
func (s *Server) MirrorStatus(userID, status string) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var err error
	if status == protocol.StatusOffline {
		err = s.mirror.Offline(ctx, userID)
	} else {
		err = s.mirror.SetStatus(ctx, userID, status)
	}
	if err != nil {
		logger.Warnf("[relay] presence mirror user=%s status=%s err=%v", userID, status, err)
	}
}

// ---- room operations ----

func (s *Server) JoinRoom(chatID string, c *Conn)  { s.rooms.join(chatID, c) }
func (s *Server) LeaveRoom(chatID string, c *Conn) { s.rooms.leave(chatID, c) }

// RoomMembers returns the live membership snapshot for a chat.
func (s *Server) RoomMembers(chatID string) []*Conn { return s.rooms.members(chatID) }

// ---- delivery ----

// SendTo delivers one event to a single connection.
func (s *Server) SendTo(c *Conn, event string, payload any) {
	data, err := protocol.EncodeFrame(event, payload)
	if err != nil {
		logger.Errorf("[relay] encode event=%s err=%v", event, err)
		return
	}
	c.enqueue(data)
}

// BroadcastExcept delivers an event to every live connection except one.
// Used for app-wide presence: presence is global, chat content is room-scoped.
func (s *Server) BroadcastExcept(except *Conn, event string, payload any) {
	data, err := protocol.EncodeFrame(event, payload)
	if err != nil {
		logger.Errorf("[relay] encode event=%s err=%v", event, err)
		return
	}

	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.conns))
	for tid, c := range s.conns {
		if except != nil && tid == except.TransportID {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	s.fanout.Broadcast(targets, data)
}

// RoomBroadcast fans an event out to every live member of a chat, the sender
// included (the sender's own UI renders from the fan-out, not the ack).
func (s *Server) RoomBroadcast(chatID, event string, payload any) {
	data, err := protocol.EncodeFrame(event, payload)
	if err != nil {
		logger.Errorf("[relay] encode event=%s err=%v", event, err)
		return
	}
	s.fanout.Broadcast(s.rooms.members(chatID), data)
}

// RoomBroadcastExcept is RoomBroadcast minus the sender; typing indicators
// must never echo.
func (s *Server) RoomBroadcastExcept(chatID string, except *Conn, event string, payload any) {
	data, err := protocol.EncodeFrame(event, payload)
	if err != nil {
		logger.Errorf("[relay] encode event=%s err=%v", event, err)
		return
	}
	s.fanout.Broadcast(s.rooms.membersExcept(chatID, except.TransportID), data)
}

// ---- connection lifecycle ----

func (s *Server) addConn(c *Conn) {
	s.mu.Lock()
	s.conns[c.TransportID] = c
	s.mu.Unlock()
}

func (s *Server) removeConn(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.TransportID)
	s.mu.Unlock()
}

// Teardown runs exactly once per physical transport close, no matter how many
// times the transport layer reports it. The offline broadcast happens before
// the registry forgets the transport mapping, and a superseded (stale)
// transport broadcasts nothing.
func (s *Server) Teardown(c *Conn) {
	c.tearOnce.Do(func() {
		c.shutdown()
		s.removeConn(c)
		s.rooms.leaveAll(c)

		userID, ok := s.reg.MarkOffline(c.TransportID)
		if !ok {
			logger.Debugf("[relay] stale transport closed transport=%s user=%s", c.TransportID, c.UserID)
			return
		}

		s.BroadcastExcept(c, protocol.EventUserStatusUpdate, protocol.UserStatusEvent{
			UserID:    userID,
			Status:    protocol.StatusOffline,
			Timestamp: s.Now().UnixMilli(),
		})
		s.MirrorStatus(userID, protocol.StatusOffline)
		logger.Infof("[relay] user offline user=%s transport=%s", userID, c.TransportID)
	})
}

// Close stops the fan-out pool and drops every connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
	s.fanout.Close()
}
