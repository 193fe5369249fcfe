package relay

import (
	"sync"

	"github.com/samber/lo"
)

// rooms tracks chat membership by transport. Membership is ephemeral: clients
// re-join after every reconnect, and nothing survives a restart.
type rooms struct {
	mu      sync.RWMutex
	byChatA map[string]map[string]*Conn // chatID -> transportID -> conn
	byConn  map[string]map[string]bool  // transportID -> set of chatIDs
}

func newRooms() *rooms {
	return &rooms{
		byChatA: make(map[string]map[string]*Conn),
		byConn:  make(map[string]map[string]bool),
	}
}

// join is idempotent; joining twice leaves the membership set unchanged.
func (r *rooms) join(chatID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byChatA[chatID]
	if m == nil {
		m = make(map[string]*Conn)
		r.byChatA[chatID] = m
	}
	m[c.TransportID] = c

	set := r.byConn[c.TransportID]
	if set == nil {
		set = make(map[string]bool)
		r.byConn[c.TransportID] = set
	}
	set[chatID] = true
}

// leave is a no-op for rooms never joined.
func (r *rooms) leave(chatID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(chatID, c.TransportID)
}

// leaveAll removes the connection from every room it joined. Called on
// transport teardown.
func (r *rooms) leaveAll(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chatID := range r.byConn[c.TransportID] {
		r.leaveLocked(chatID, c.TransportID)
	}
}

func (r *rooms) leaveLocked(chatID, transportID string) {
	if m := r.byChatA[chatID]; m != nil {
		delete(m, transportID)
		if len(m) == 0 {
			delete(r.byChatA, chatID)
		}
	}
	if set := r.byConn[transportID]; set != nil {
		delete(set, chatID)
		if len(set) == 0 {
			delete(r.byConn, transportID)
		}
	}
}

// members returns a snapshot of the room at call time.
func (r *rooms) members(chatID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.byChatA[chatID])
}

// membersExcept returns a snapshot excluding one transport (the sender).
func (r *rooms) membersExcept(chatID, transportID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.byChatA[chatID]
	out := make([]*Conn, 0, len(m))
	for tid, c := range m {
		if tid == transportID {
			continue
		}
		out = append(out, c)
	}
	return out
}
