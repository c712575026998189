package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Engine.Retry.MaxAttempts == 0 {
		cfg.Engine.Retry.MaxAttempts = 5
	}
	if cfg.Engine.Retry.InitialDelay == 0 {
		cfg.Engine.Retry.InitialDelay = Duration(1 * time.Second)
	}
	if cfg.Engine.Retry.MaxDelay == 0 {
		cfg.Engine.Retry.MaxDelay = Duration(60 * time.Second)
	}
	if cfg.Engine.Retry.BackoffMultiple == 0 {
		cfg.Engine.Retry.BackoffMultiple = 2.0
	}
	if cfg.Engine.Fallback.Timeout == 0 {
		cfg.Engine.Fallback.Timeout = Duration(5 * time.Second)
	}
	if cfg.Engine.Fallback.CacheTTL == 0 {
		cfg.Engine.Fallback.CacheTTL = Duration(15 * time.Minute)
	}
	if cfg.Engine.Fallback.CacheMaxAge == 0 {
		cfg.Engine.Fallback.CacheMaxAge = cfg.Engine.Fallback.CacheTTL
	}
	if cfg.Engine.Recovery.MaxConcurrent == 0 {
		cfg.Engine.Recovery.MaxConcurrent = 3
	}
	if cfg.Engine.Recovery.HistorySize == 0 {
		cfg.Engine.Recovery.HistorySize = 100
	}
	if cfg.Engine.Logger.BufferSize == 0 {
		cfg.Engine.Logger.BufferSize = 500
	}
	if cfg.Engine.Logger.AggregationWindow == 0 {
		cfg.Engine.Logger.AggregationWindow = Duration(time.Minute)
	}
	if cfg.Engine.Logger.MaxDuplicates == 0 {
		cfg.Engine.Logger.MaxDuplicates = 5
	}

	return &cfg, nil
}
