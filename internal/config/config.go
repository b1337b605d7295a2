// Package config loads the per-process configuration shared by the
// registry daemon and the party daemon: Redis address, Postgres DSN,
// listen address, and the TTL tunables named throughout the spec.
package config

import (
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/haroldsh/fulcrum/internal/obs"
)

// Config is the full set of environment-driven settings a fulcrum process
// needs to start. Every field loads via envdecode struct tags; defaults
// are supplied there rather than in code so the env is the single source
// of truth.
type Config struct {
	RedisAddr     string `envdecode:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `envdecode:"REDIS_PASSWORD,default="`
	RedisDB       int    `envdecode:"REDIS_DB,default=0"`

	PostgresDSN string `envdecode:"POSTGRES_DSN,default="`
	SQLiteDSN   string `envdecode:"SQLITE_DSN,default=fulcrum.db"`
	SQLDialect  string `envdecode:"SQL_DIALECT,default=sqlite"`

	JSONDocBaseDir string `envdecode:"JSONDOC_BASE_DIR,default=./data/jsondoc"`

	ListenAddr string `envdecode:"LISTEN_ADDR,default=:8080"`

	ServerFamily string `envdecode:"SERVER_FAMILY,default=fulcrum-proxy"`
	Environment  string `envdecode:"ENVIRONMENT_FILE,default=./ENVIRONMENT"`

	HeartbeatInterval       time.Duration `envdecode:"HEARTBEAT_INTERVAL,default=2s"`
	TempHeartbeatThreshold  time.Duration `envdecode:"TEMP_HEARTBEAT_THRESHOLD,default=90s"`
	RegistrationTimeout     time.Duration `envdecode:"REGISTRATION_TIMEOUT,default=10s"`
	SoloIdleGrace           time.Duration `envdecode:"SOLO_IDLE_GRACE,default=5m"`
	InviteTTL               time.Duration `envdecode:"INVITE_TTL,default=60s"`
	ReservationTTL          time.Duration `envdecode:"RESERVATION_TTL,default=5m"`
	QueryPlanCacheTTL       time.Duration `envdecode:"QUERY_PLAN_CACHE_TTL,default=5m"`
	SchemaStatsCacheTTL     time.Duration `envdecode:"SCHEMA_STATS_CACHE_TTL,default=10m"`
	DirtyFlushInterval      time.Duration `envdecode:"DIRTY_FLUSH_INTERVAL,default=30s"`
	DirtyFlushDebounce      time.Duration `envdecode:"DIRTY_FLUSH_DEBOUNCE,default=2s"`

	Log obs.Config
}

// Load reads an optional .env file (ignored if absent, the way local dev
// overrides are layered in) and then decodes the process environment into
// a Config via envdecode struct tags.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
