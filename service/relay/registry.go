package relay

import (
	"sync"
	"time"
)

// Presence state of a session.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// Session binds a user identity to its current live transport. TransportID
// changes on every reconnect; UserID is stable.
type Session struct {
	UserID      string
	TransportID string
	Presence    Presence
	LastSeen    time.Time
}

// RegistryConf allows injecting a clock for tests.
type RegistryConf struct {
	Clock func() time.Time
}

func (c *RegistryConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Registry is the single source of truth for "who is online, on which
// transport". All state is in memory and rebuilt from scratch on restart.
type Registry struct {
	mu          sync.RWMutex
	byUser      map[string]*Session
	byTransport map[string]*Session
	conf        RegistryConf
}

func NewRegistry() *Registry {
	return NewRegistryWithConf(RegistryConf{})
}

func NewRegistryWithConf(conf RegistryConf) *Registry {
	conf.norm()
	return &Registry{
		byUser:      make(map[string]*Session),
		byTransport: make(map[string]*Session),
		conf:        conf,
	}
}

// Register inserts or replaces the session for userID. A prior transport for
// the same user becomes stale: it is dropped from the transport index so a
// late MarkOffline for it reports nothing. Last register wins.
func (r *Registry) Register(userID, transportID string) {
	now := r.conf.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.byUser[userID]; prev != nil {
		delete(r.byTransport, prev.TransportID)
	}

	s := &Session{
		UserID:      userID,
		TransportID: transportID,
		Presence:    PresenceOnline,
		LastSeen:    now,
	}
	r.byUser[userID] = s
	r.byTransport[transportID] = s
}

// MarkOffline flips the owning session offline and returns its user, but only
// when transportID is still authoritative. Superseded transports return
// ok=false so the caller never broadcasts a duplicate offline. The session
// record itself stays queryable (offline, lastSeen updated) until the next
// Register replaces it.
func (r *Registry) MarkOffline(transportID string) (userID string, ok bool) {
	now := r.conf.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.byTransport[transportID]
	if s == nil {
		return "", false
	}
	s.Presence = PresenceOffline
	s.LastSeen = now
	delete(r.byTransport, transportID)
	return s.UserID, true
}

// UpdatePresence sets a custom presence state for the user, refreshing
// LastSeen. Returns false for unknown users.
func (r *Registry) UpdatePresence(userID string, p Presence) bool {
	now := r.conf.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.byUser[userID]
	if s == nil {
		return false
	}
	s.Presence = p
	s.LastSeen = now
	return true
}

// Lookup returns a copy of the user's session.
func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.byUser[userID]
	if s == nil {
		return Session{}, false
	}
	return *s, true
}
