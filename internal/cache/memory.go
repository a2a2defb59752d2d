package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryEntry is a cached item with its expiry and access bookkeeping.
type memoryEntry struct {
	data           []byte
	createdAt      time.Time
	ttl            time.Duration
	accessCount    int
	lastAccessedAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// MemoryTier is the in-process cache layer: an LRU map with per-entry
// TTL and a periodic sweep for expired entries.
type MemoryTier struct {
	cache  *lru.Cache[string, *memoryEntry]
	now    func() time.Time
	stopCh chan struct{}
	mu     sync.Mutex
}

// NewMemoryTier creates a memory tier holding at most size entries.
func NewMemoryTier(size int, sweepInterval time.Duration) (*MemoryTier, error) {
	c, err := lru.New[string, *memoryEntry](size)
	if err != nil {
		return nil, err
	}
	mt := &MemoryTier{
		cache:  c,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go mt.sweepLoop(sweepInterval)
	}
	return mt, nil
}

// Get retrieves a value, removing it if expired. A hit updates the
// entry's access counters.
func (mt *MemoryTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	entry, ok := mt.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	now := mt.now()
	if entry.expired(now) {
		mt.cache.Remove(key)
		return nil, false, nil
	}
	entry.accessCount++
	entry.lastAccessedAt = now
	return entry.data, true, nil
}

// Set stores a value with the given TTL.
func (mt *MemoryTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.cache.Add(key, &memoryEntry{
		data:      value,
		createdAt: mt.now(),
		ttl:       ttl,
	})
	return nil
}

// Delete removes a key.
func (mt *MemoryTier) Delete(_ context.Context, key string) (bool, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.cache.Remove(key), nil
}

// Keys returns all live keys containing substr.
func (mt *MemoryTier) Keys(_ context.Context, substr string) ([]string, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	now := mt.now()
	var keys []string
	for _, key := range mt.cache.Keys() {
		entry, ok := mt.cache.Peek(key)
		if !ok || entry.expired(now) {
			continue
		}
		if strings.Contains(key, substr) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len returns the number of live entries.
func (mt *MemoryTier) Len() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	now := mt.now()
	n := 0
	for _, key := range mt.cache.Keys() {
		if entry, ok := mt.cache.Peek(key); ok && !entry.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the sweep goroutine.
func (mt *MemoryTier) Close() error {
	close(mt.stopCh)
	return nil
}

// sweepLoop periodically removes expired entries.
func (mt *MemoryTier) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mt.removeExpired()
		case <-mt.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries.
func (mt *MemoryTier) removeExpired() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	now := mt.now()
	for _, key := range mt.cache.Keys() {
		if entry, ok := mt.cache.Peek(key); ok && entry.expired(now) {
			mt.cache.Remove(key)
		}
	}
}
