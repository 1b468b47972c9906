// Package config loads Sophia's runtime configuration from the
// environment. There is no config file: every recognized key has a
// sensible default so the core runs out of the box in memory-backed,
// single-operator mode.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the Sophia approval/publishing/
// recovery core.
type Config struct {
	Port    int
	Version string

	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Operator  OperatorConfig
	Bot       BotConfig
	Platforms PlatformsConfig
	Events    EventsConfig
	Telemetry TelemetryConfig
	Metrics   MetricsConfig
}

// DatabaseConfig selects and configures the content store. DBPath empty
// or memory:// selects MemoryStore; a postgres:// DSN selects
// PostgresStore.
type DatabaseConfig struct {
	DBPath          string
	EncryptionKey   string
	MigrationsPath  string
}

// SchedulerConfig configures the fire-lease ledger and stale threshold.
// DispatchTimeoutSeconds is loaded from DISPATCH_TIMEOUT_SECONDS but not
// read by the scheduler, which uses a fixed 30s dispatch timeout.
type SchedulerConfig struct {
	DBPath                 string
	DispatchTimeoutSeconds int
	StaleThresholdHours    int
}

// OperatorConfig holds the single operator's preferences.
type OperatorConfig struct {
	Timezone string
	BaseURL  string
	APIToken string
}

// BotConfig configures the chat-bot notification/webhook surface.
type BotConfig struct {
	Token  string
	ChatID string
}

// PlatformsConfig holds per-platform account identities and tokens.
type PlatformsConfig struct {
	FacebookPageID           string
	FacebookAccessToken      string
	InstagramBusinessAccount string
	InstagramAccessToken     string
}

// EventsConfig bounds the in-process event bus.
type EventsConfig struct {
	MaxSubscribers int
	BufferSize     int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("HTTP_PORT", 8080),
		Version: envStr("SOPHIA_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			DBPath:         envStr("DB_PATH", "memory://"),
			EncryptionKey:  envStr("DB_ENCRYPTION_KEY", ""),
			MigrationsPath: envStr("DB_MIGRATIONS_PATH", "internal/store/migrations"),
		},
		Scheduler: SchedulerConfig{
			DBPath:                 envStr("SCHEDULER_DB_PATH", "sophia-scheduler.db"),
			DispatchTimeoutSeconds: envInt("DISPATCH_TIMEOUT_SECONDS", 30),
			StaleThresholdHours:    envInt("STALE_THRESHOLD_HOURS", 4),
		},
		Operator: OperatorConfig{
			Timezone: envStr("OPERATOR_TIMEZONE", "UTC"),
			BaseURL:  envStr("BASE_URL", "http://localhost:8080"),
			APIToken: envStr("SOPHIA_API_TOKEN", ""),
		},
		Bot: BotConfig{
			Token:  envStr("BOT_TOKEN", ""),
			ChatID: envStr("BOT_CHAT_ID", ""),
		},
		Platforms: PlatformsConfig{
			FacebookPageID:           envStr("FACEBOOK_PAGE_ID", ""),
			FacebookAccessToken:      envStr("FACEBOOK_ACCESS_TOKEN", ""),
			InstagramBusinessAccount: envStr("INSTAGRAM_BUSINESS_ACCOUNT_ID", ""),
			InstagramAccessToken:     envStr("INSTAGRAM_ACCESS_TOKEN", ""),
		},
		Events: EventsConfig{
			MaxSubscribers: envInt("SSE_MAX_SUBSCRIBERS", 16),
			BufferSize:     envInt("EVENT_BUFFER_SIZE", 32),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "sophia"),
		},
		Metrics: MetricsConfig{
			Enabled: envBool("METRICS_ENABLED", true),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
