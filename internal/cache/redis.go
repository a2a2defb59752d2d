package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is the shared cache layer backed by Redis. Redis handles
// TTL expiry itself, so this tier carries no sweep of its own.
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier connects to Redis using a standard connection URL
// (redis://[user:pass@]host:port/db).
func NewRedisTier(url string) (*RedisTier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisTier{client: redis.NewClient(opts)}, nil
}

// Get retrieves a value by key.
func (rt *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := rt.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value with the given TTL.
func (rt *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return rt.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (rt *RedisTier) Delete(ctx context.Context, key string) (bool, error) {
	n, err := rt.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys scans for all keys containing substr.
func (rt *RedisTier) Keys(ctx context.Context, substr string) ([]string, error) {
	var keys []string
	iter := rt.client.Scan(ctx, 0, "*"+substr+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying connection pool.
func (rt *RedisTier) Close() error {
	return rt.client.Close()
}
