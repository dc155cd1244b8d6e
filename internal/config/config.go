// Package config defines the global configuration structure for remindbot.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved from the OS environment, with a .env file as a
// development-time fallback. Any missing required value or invalid format
// causes the process to exit immediately on startup (fail fast).
package config

import (
	"time"

	"remindbot/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for remindbot. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"remindbot"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Database DatabaseConfig
	Cache    CacheConfig
	Telegram TelegramConfig
	Worker   WorkerConfig
	Ops      OpsConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// CacheConfig selects and tunes the fast-store backend. The scheduler runs
// in degraded mode (durable-store range queries only) when Backend is "none".
type CacheConfig struct {
	Backend    string        `envconfig:"CACHE_BACKEND" default:"memory" validate:"oneof=memory none"`
	KeyPrefix  string        `envconfig:"CACHE_KEY_PREFIX"`
	DefaultTTL time.Duration `envconfig:"CACHE_DEFAULT_TTL" default:"10m"`
}

// TelegramConfig holds the bot credentials and long-polling settings.
type TelegramConfig struct {
	Token SecretString `envconfig:"TELEGRAM_BOT_TOKEN" validate:"required"`
	// APIEndpoint overrides the Telegram Bot API base URL (test servers).
	APIEndpoint string `envconfig:"TELEGRAM_API_ENDPOINT"`
	// UpdateTimeout is the long-poll timeout in seconds for GetUpdates.
	UpdateTimeout int `envconfig:"TELEGRAM_UPDATE_TIMEOUT" default:"30"`
}

// WorkerConfig tunes the reminder delivery worker poll loop.
type WorkerConfig struct {
	// IdleInterval is the sleep between cycles that found no due work.
	IdleInterval time.Duration `envconfig:"WORKER_IDLE_INTERVAL" default:"15s"`
	// DrainInterval is the short sleep after a productive cycle, so
	// backlogs are drained quickly.
	DrainInterval time.Duration `envconfig:"WORKER_DRAIN_INTERVAL" default:"200ms"`
	// ErrorBackoff is the sleep after a cycle that failed unexpectedly.
	ErrorBackoff time.Duration `envconfig:"WORKER_ERROR_BACKOFF" default:"5s"`
	// Lookahead is how far past "now" the worker pre-leases near-future
	// work. Pre-leased reminders that are not yet due are re-queued, never
	// delivered early.
	Lookahead time.Duration `envconfig:"WORKER_LOOKAHEAD" default:"1m"`
	// BatchSize bounds the candidates pulled from the due-index per cycle.
	BatchSize int `envconfig:"WORKER_BATCH_SIZE" default:"100"`
	// LockTTL is the reminder lease duration. It must exceed the worst-case
	// delivery attempt latency plus store round-trips, or a slow but
	// successful delivery can be preempted by a second worker mid-flight.
	LockTTL time.Duration `envconfig:"WORKER_LOCK_TTL" default:"30s"`
	// ResyncSpec is the cron spec for the due-index rebuild job. With the
	// in-memory fast store the bot and worker processes do not share an
	// index, so the rebuild period also bounds how long a newly scheduled
	// reminder takes to become visible to the worker.
	ResyncSpec string `envconfig:"WORKER_RESYNC_SPEC" default:"@every 1m"`
}

// OpsConfig holds the operational HTTP endpoint settings for the worker.
type OpsConfig struct {
	Port string `envconfig:"OPS_PORT" default:"8081"`
}

// MetricsConfig holds CloudWatch telemetry settings. Disabled by default;
// when disabled a no-op recorder is wired instead.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"RemindBot"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}
