package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Load reads the configuration file, applies WALLETFLOW_* environment
// overrides and defaults, and validates the result. An empty path
// skips the file and builds the config from environment and defaults
// alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment. Environment wins
// over the file so deployments can reconfigure without editing it.
func applyEnv(cfg *Config) {
	envString("WALLETFLOW_NODE_URL", &cfg.NodeURL)
	envString("WALLETFLOW_NODE_WS_URL", &cfg.NodeWSURL)
	envString("WALLETFLOW_LOG_LEVEL", &cfg.LogLevel)
	envString("WALLETFLOW_REDIS_URL", &cfg.RedisURL)
	envInt("WALLETFLOW_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	envInt("WALLETFLOW_MAX_RETRIES", &cfg.MaxRetries)
	envInt("WALLETFLOW_RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	envInt("WALLETFLOW_RATE_LIMIT", &cfg.RateLimit)
	envInt("WALLETFLOW_RATE_WINDOW", &cfg.RateWindow)
	envInt("WALLETFLOW_BREAKER_THRESHOLD", &cfg.BreakerThreshold)
	envInt("WALLETFLOW_BREAKER_COOLDOWN", &cfg.BreakerCooldown)
	envInt("WALLETFLOW_CACHE_TTL", &cfg.CacheTTL)
	envInt("WALLETFLOW_ACTIVITY_CACHE_TTL", &cfg.ActivityCacheTTL)
	envInt("WALLETFLOW_CACHE_SIZE", &cfg.CacheSize)
	envInt("WALLETFLOW_BATCH_CONCURRENCY", &cfg.BatchConcurrency)
	envInt("WALLETFLOW_BATCH_TIMEOUT", &cfg.BatchTimeout)
	envInt("WALLETFLOW_EVENT_LIMIT", &cfg.EventLimit)
	envInt("WALLETFLOW_METRICS_PORT", &cfg.MetricsPort)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = DefaultRateWindow
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.ActivityCacheTTL == 0 {
		cfg.ActivityCacheTTL = DefaultActivityCacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.EventLimit == 0 {
		cfg.EventLimit = DefaultEventLimit
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	if cfg.NodeURL == "" {
		return errors.New("nodeUrl is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be non-negative")
	}
	if cfg.RateLimit <= 0 {
		return fmt.Errorf("rateLimit must be positive")
	}
	if cfg.RateWindow <= 0 {
		return fmt.Errorf("rateWindow must be positive")
	}
	if cfg.BreakerThreshold <= 0 {
		return fmt.Errorf("breakerThreshold must be positive")
	}
	if cfg.CacheTTL <= 0 || cfg.ActivityCacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if cfg.CacheSize <= 0 {
		return fmt.Errorf("cacheSize must be positive")
	}
	if cfg.BatchConcurrency <= 0 {
		return fmt.Errorf("batchConcurrency must be positive")
	}
	if cfg.BatchTimeout < 0 {
		return fmt.Errorf("batchTimeout must be non-negative")
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metricsPort must be between 0 and 65535")
	}
	return nil
}
