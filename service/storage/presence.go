package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Mirror publishes presence to Redis so external collaborators (the
// Firebase-backed profile store, ops tooling) can query liveness without
// talking to the relay. The relay itself never reads the mirror for routing:
// the in-memory registry stays the single source of truth, and losing the
// mirror only degrades external visibility.

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // online key validity; refreshed on status updates
}

type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMirror connects and pings. Callers should treat errors as non-fatal:
// the relay runs fine without the mirror.
func NewMirror(c Config) (*Mirror, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Mirror{rdb: rdb, ttl: ttl}, nil
}

// presence key: polychat:presence:<user>
// value: the user's status string; TTL bounds staleness after a crash.
func presenceKey(user string) string { return "polychat:presence:" + user }

// SetStatus records the user's current status and renews the TTL.
func (m *Mirror) SetStatus(ctx context.Context, user, status string) error {
	return errors.Wrap(m.rdb.Set(ctx, presenceKey(user), status, m.ttl).Err(), "presence set")
}

// Offline removes the presence key outright.
func (m *Mirror) Offline(ctx context.Context, user string) error {
	return errors.Wrap(m.rdb.Del(ctx, presenceKey(user)).Err(), "presence del")
}

// Lookup returns the mirrored status, or online=false when the key expired
// or never existed.
func (m *Mirror) Lookup(ctx context.Context, user string) (status string, online bool, err error) {
	val, err := m.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "presence get")
	}
	return val, true, nil
}

// Close releases the client.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}
