package config

import "time"

// Config is the process configuration. Durations are expressed in the
// unit named by the field suffix; Get*Duration helpers convert them.
type Config struct {
	NodeURL   string `json:"nodeUrl"`
	NodeWSURL string `json:"nodeWsUrl"`
	LogLevel  string `json:"logLevel"`

	RequestTimeout int `json:"requestTimeout"` // ms
	MaxRetries     int `json:"maxRetries"`
	RetryBaseDelay int `json:"retryBaseDelay"` // ms

	RateLimit  int `json:"rateLimit"`  // requests per window
	RateWindow int `json:"rateWindow"` // ms

	BreakerThreshold int `json:"breakerThreshold"`
	BreakerCooldown  int `json:"breakerCooldown"` // ms

	CacheTTL         int    `json:"cacheTtl"`         // seconds, static node data
	ActivityCacheTTL int    `json:"activityCacheTtl"` // seconds, derived wallet activity
	CacheSize        int    `json:"cacheSize"`        // local tier entries
	RedisURL         string `json:"redisUrl"`         // optional shared tier

	BatchConcurrency int `json:"batchConcurrency"`
	BatchTimeout     int `json:"batchTimeout"` // ms, 0 means no deadline
	EventLimit       int `json:"eventLimit"`

	MetricsPort int `json:"metricsPort"` // 0 disables the metrics endpoint
}

// Defaults are safe for unauthenticated, low-volume public node use.
const (
	DefaultLogLevel         = "info"
	DefaultRequestTimeout   = 10000 // ms
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 200 // ms
	DefaultRateLimit        = 10
	DefaultRateWindow       = 1000 // ms
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30000 // ms
	DefaultCacheTTL         = 300   // s
	DefaultActivityCacheTTL = 120   // s
	DefaultCacheSize        = 4096
	DefaultBatchConcurrency = 5
	DefaultEventLimit       = 200
)

// GetRequestTimeoutDuration returns the request timeout as a Duration.
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetRetryBaseDelayDuration returns the retry base delay as a Duration.
func (c *Config) GetRetryBaseDelayDuration() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRateWindowDuration returns the rate window as a Duration.
func (c *Config) GetRateWindowDuration() time.Duration {
	return time.Duration(c.RateWindow) * time.Millisecond
}

// GetBreakerCooldownDuration returns the breaker cooldown as a Duration.
func (c *Config) GetBreakerCooldownDuration() time.Duration {
	return time.Duration(c.BreakerCooldown) * time.Millisecond
}

// GetCacheTTLDuration returns the static-data cache TTL as a Duration.
func (c *Config) GetCacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetActivityCacheTTLDuration returns the activity cache TTL as a Duration.
func (c *Config) GetActivityCacheTTLDuration() time.Duration {
	return time.Duration(c.ActivityCacheTTL) * time.Second
}

// GetBatchTimeoutDuration returns the batch deadline as a Duration.
func (c *Config) GetBatchTimeoutDuration() time.Duration {
	return time.Duration(c.BatchTimeout) * time.Millisecond
}
