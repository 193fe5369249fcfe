package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from the environment with the POLYCHAT_ prefix. A local
// .env file is honored when present.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":5000"`
	WSPath     string `envconfig:"WS_PATH" default:"/ws"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"debug"`
	NodeID     int64  `envconfig:"NODE_ID" default:"1"`

	// Identity provider (HMAC JWT). Real deployments point this at the
	// secret shared with the external issuer.
	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret"`

	// Redis presence mirror; empty addr disables it entirely.
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	PresenceTTL   time.Duration `envconfig:"PRESENCE_TTL" default:"2m"`

	// Relay tuning.
	FanoutWorkers int           `envconfig:"FANOUT_WORKERS" default:"4"`
	FanoutQueue   int           `envconfig:"FANOUT_QUEUE" default:"1024"`
	SendQueueSize int           `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	PingInterval  time.Duration `envconfig:"PING_INTERVAL" default:"25s"`
	WriteTimeout  time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadLimit     int64         `envconfig:"READ_LIMIT" default:"1048576"`
}

// Load reads .env (best effort) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("polychat", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
