package config

import (
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Engine   EngineConfig       `yaml:"engine"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Report   ReportConfig       `yaml:"report"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ReportConfig holds remote telemetry collector settings.
type ReportConfig struct {
	Endpoint string   `yaml:"endpoint"`
	APIKey   string   `yaml:"api_key"`
	Timeout  Duration `yaml:"timeout"`
}

// EngineConfig aggregates the resilience sub-system settings.
type EngineConfig struct {
	Locale   string         `yaml:"locale"`
	Retry    RetryConfig    `yaml:"retry"`
	Fallback FallbackConfig `yaml:"fallback"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// RetryConfig holds backoff settings for the retry loop.
type RetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialDelay    Duration `yaml:"initial_delay"`
	MaxDelay        Duration `yaml:"max_delay"`
	BackoffMultiple float64  `yaml:"backoff_multiple"`
	Jitter          string   `yaml:"jitter"` // none, full, equal, decorrelated
	Timeout         Duration `yaml:"timeout"`
}

// FallbackConfig holds degraded-mode settings.
type FallbackConfig struct {
	Timeout     Duration `yaml:"timeout"`
	Offline     bool     `yaml:"offline"`
	CacheTTL    Duration `yaml:"cache_ttl"`
	CacheMaxAge Duration `yaml:"cache_max_age"`
}

// RecoveryConfig holds workflow orchestration limits.
type RecoveryConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	HistorySize   int `yaml:"history_size"`
}

// LoggerConfig holds diagnostic pipeline settings.
type LoggerConfig struct {
	Console           bool     `yaml:"console"`
	BufferSize        int      `yaml:"buffer_size"`
	AggregationWindow Duration `yaml:"aggregation_window"`
	MaxDuplicates     int      `yaml:"max_duplicates"`
	IncludeStack      bool     `yaml:"include_stack"`
	IncludeContext    bool     `yaml:"include_context"`
	EnableUserData    bool     `yaml:"enable_user_data"`
	RemovePatterns    []string `yaml:"remove_patterns"`
	BatchSize         int      `yaml:"batch_size"`
	FlushInterval     Duration `yaml:"flush_interval"`
}
