package cache

import (
	"context"
	"time"
)

// Tier is a single cache layer. The tiered cache composes a fast local
// tier with an optional slower shared tier behind this interface.
type Tier interface {
	// Get retrieves a value by key. The bool reports a hit; an error
	// means the tier itself failed (unreachable backend), not a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a per-entry TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key, reporting whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns all keys containing the given substring.
	Keys(ctx context.Context, substr string) ([]string, error)

	// Close releases any resources held by the tier.
	Close() error
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	KeyCount int     `json:"keyCount"`
	HitRate  float64 `json:"hitRate"`
}
