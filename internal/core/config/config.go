package config

import (
	"time"

	redisclient "github.com/kaizen2025/bulkops/internal/infra/redis"
	"github.com/kaizen2025/bulkops/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Engine   EngineConfig       `yaml:"engine"`
	Audit    AuditConfig        `yaml:"audit"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`

	// RateLimit is the sustained API request rate per second;
	// RateBurst is the burst allowance. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// EngineConfig tunes the bulk executor and its collaborators.
type EngineConfig struct {
	// MaxAutoRetries caps unattended retries per operation chain.
	MaxAutoRetries int `yaml:"max_auto_retries"`

	// NotifierURL is the mail gateway webhook for recall notices.
	// Empty switches recall delivery to the in-process no-op sender.
	NotifierURL string `yaml:"notifier_url"`

	// NotifierTimeout bounds a single webhook call.
	NotifierTimeout time.Duration `yaml:"notifier_timeout"`
}

// AuditConfig controls audit log capacity and retention.
type AuditConfig struct {
	// MaxEntries caps the log; the oldest entries rotate out.
	MaxEntries int `yaml:"max_entries"`

	// Retention prunes entries older than this. 0 = keep forever.
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
