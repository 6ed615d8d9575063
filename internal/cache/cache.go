// Package cache declares the cache contracts used by services; rediscache
// implements them.
package cache

import (
	"context"
	"time"
)

// BytesCache stores opaque values. Get reports a miss with ok=false and a
// nil error.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RateLimiter counts calls per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}
