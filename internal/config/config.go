package config

import (
	"time"

	"github.com/ajisai-dev/huesync/internal/logging"
)

// Config represents the application configuration. envconfig derives each
// key as HUESYNC_<SECTION>_<TAG>, prefixing the parent field name itself;
// leaf tags must therefore not repeat the section name.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Limits      LimitsConfig      `json:"limits" yaml:"limits"`
	Presence    PresenceConfig    `json:"presence" yaml:"presence"`
	Preferences PreferencesConfig `json:"preferences" yaml:"preferences"`
	Logging     logging.Config    `json:"logging" yaml:"logging"`
}

// ServerConfig represents HTTP listener configuration. Read and write
// timeouts are deliberately absent: they would carry over to hijacked
// WebSocket connections and sever them mid-session.
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" envconfig:"HOST"`
	Port            int           `json:"port" yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"min=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=0"`
}

// LimitsConfig represents per-connection abuse limits
type LimitsConfig struct {
	MaxConnections    int           `json:"max_connections" yaml:"max_connections" envconfig:"MAX_CONNECTIONS" validate:"min=1"`
	MaxMessageBytes   int           `json:"max_message_bytes" yaml:"max_message_bytes" envconfig:"MAX_MESSAGE_BYTES" validate:"min=1"`
	RateLimitMessages int           `json:"rate_limit_messages" yaml:"rate_limit_messages" envconfig:"RATE_LIMIT_MESSAGES" validate:"min=1"`
	RateLimitWindow   time.Duration `json:"rate_limit_window" yaml:"rate_limit_window" envconfig:"RATE_LIMIT_WINDOW" validate:"min=1ms"`
}

// PresenceConfig represents heartbeat and broadcast timing
type PresenceConfig struct {
	HeartbeatInterval    time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL" validate:"min=1ms"`
	DebounceDelay        time.Duration `json:"debounce_delay" yaml:"debounce_delay" envconfig:"DEBOUNCE_DELAY" validate:"min=1ms"`
	MinBroadcastInterval time.Duration `json:"min_broadcast_interval" yaml:"min_broadcast_interval" envconfig:"MIN_BROADCAST_INTERVAL" validate:"min=0"`
	SweepInterval        time.Duration `json:"sweep_interval" yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL" validate:"min=1ms"`
	RepushDelay          time.Duration `json:"repush_delay" yaml:"repush_delay" envconfig:"REPUSH_DELAY" validate:"min=1ms"`
}

// PreferencesConfig selects the preference store backend
type PreferencesConfig struct {
	Backend string `json:"backend" yaml:"backend" envconfig:"BACKEND" validate:"oneof=badger file memory"`
	Path    string `json:"path" yaml:"path" envconfig:"PATH"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            3000,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxConnections:    200,
			MaxMessageBytes:   1000,
			RateLimitMessages: 200,
			RateLimitWindow:   time.Minute,
		},
		Presence: PresenceConfig{
			HeartbeatInterval:    30 * time.Second,
			DebounceDelay:        100 * time.Millisecond,
			MinBroadcastInterval: 2 * time.Second,
			SweepInterval:        30 * time.Second,
			RepushDelay:          500 * time.Millisecond,
		},
		Preferences: PreferencesConfig{
			Backend: "badger",
			Path:    "data/preferences",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}
