package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TieredCache layers a fast local tier over an optional shared tier.
// A local miss followed by a shared hit repopulates the local tier
// (read repair). Shared-tier failures degrade to local-only behavior
// and are never surfaced to the caller.
type TieredCache struct {
	local     *MemoryTier
	shared    Tier
	repairTTL time.Duration
	logger    zerolog.Logger

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// Options configures a TieredCache.
type Options struct {
	// Shared is the optional second tier; nil means local-only.
	Shared Tier
	// RepairTTL is the local TTL used when repopulating from the
	// shared tier, where the remaining shared TTL is unknown.
	RepairTTL time.Duration
}

// NewTiered creates a TieredCache over the given local tier.
func NewTiered(local *MemoryTier, opts Options, logger zerolog.Logger) *TieredCache {
	if opts.RepairTTL <= 0 {
		opts.RepairTTL = time.Minute
	}
	return &TieredCache{
		local:     local,
		shared:    opts.Shared,
		repairTTL: opts.RepairTTL,
		logger:    logger,
	}
}

// Get retrieves a value, checking the local tier first and falling
// back to the shared tier. Every call moves the hit/miss counters.
func (tc *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if data, ok, _ := tc.local.Get(ctx, key); ok {
		tc.count(true)
		return data, true
	}

	if tc.shared != nil {
		data, ok, err := tc.shared.Get(ctx, key)
		if err != nil {
			tc.logger.Warn().Err(err).Str("key", key).Msg("shared cache tier get failed")
		} else if ok {
			if err := tc.local.Set(ctx, key, data, tc.repairTTL); err != nil {
				tc.logger.Warn().Err(err).Str("key", key).Msg("local cache repair failed")
			}
			tc.count(true)
			return data, true
		}
	}

	tc.count(false)
	return nil, false
}

// Set writes to the local tier and, best effort, to the shared tier.
func (tc *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := tc.local.Set(ctx, key, value, ttl); err != nil {
		tc.logger.Warn().Err(err).Str("key", key).Msg("local cache set failed")
	}
	if tc.shared != nil {
		if err := tc.shared.Set(ctx, key, value, ttl); err != nil {
			tc.logger.Warn().Err(err).Str("key", key).Msg("shared cache tier set failed")
		}
	}
}

// Delete removes a key from both tiers, reporting whether either tier
// held it.
func (tc *TieredCache) Delete(ctx context.Context, key string) bool {
	deleted, _ := tc.local.Delete(ctx, key)
	if tc.shared != nil {
		ok, err := tc.shared.Delete(ctx, key)
		if err != nil {
			tc.logger.Warn().Err(err).Str("key", key).Msg("shared cache tier delete failed")
		} else if ok {
			deleted = true
		}
	}
	return deleted
}

// DeletePattern removes every key containing substr from both tiers
// and returns the number of distinct keys removed.
func (tc *TieredCache) DeletePattern(ctx context.Context, substr string) int {
	removed := make(map[string]struct{})

	keys, _ := tc.local.Keys(ctx, substr)
	for _, key := range keys {
		if ok, _ := tc.local.Delete(ctx, key); ok {
			removed[key] = struct{}{}
		}
	}

	if tc.shared != nil {
		keys, err := tc.shared.Keys(ctx, substr)
		if err != nil {
			tc.logger.Warn().Err(err).Str("pattern", substr).Msg("shared cache tier scan failed")
		} else {
			for _, key := range keys {
				ok, err := tc.shared.Delete(ctx, key)
				if err != nil {
					tc.logger.Warn().Err(err).Str("key", key).Msg("shared cache tier delete failed")
					continue
				}
				if ok {
					removed[key] = struct{}{}
				}
			}
		}
	}
	return len(removed)
}

// Keys returns the union of keys containing substr across both tiers.
func (tc *TieredCache) Keys(ctx context.Context, substr string) []string {
	seen := make(map[string]struct{})
	var keys []string

	local, _ := tc.local.Keys(ctx, substr)
	for _, key := range local {
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if tc.shared != nil {
		shared, err := tc.shared.Keys(ctx, substr)
		if err != nil {
			tc.logger.Warn().Err(err).Str("pattern", substr).Msg("shared cache tier scan failed")
			return keys
		}
		for _, key := range shared {
			if _, ok := seen[key]; !ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// Stats returns a snapshot of hit/miss counters. KeyCount covers the
// local tier only.
func (tc *TieredCache) Stats() Stats {
	tc.mu.Lock()
	hits, misses := tc.hits, tc.misses
	tc.mu.Unlock()

	s := Stats{
		Hits:     hits,
		Misses:   misses,
		KeyCount: tc.local.Len(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Close releases both tiers.
func (tc *TieredCache) Close() error {
	err := tc.local.Close()
	if tc.shared != nil {
		if serr := tc.shared.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func (tc *TieredCache) count(hit bool) {
	tc.mu.Lock()
	if hit {
		tc.hits++
	} else {
		tc.misses++
	}
	tc.mu.Unlock()
}
