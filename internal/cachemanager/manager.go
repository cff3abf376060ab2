// Package cachemanager provides typed TTL caches used by the command
// pipeline (deduplication) and the agent registry (token lookups).
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache with per-entry TTL.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	// Add stores value only if key is absent or expired. It reports whether
	// the value was stored.
	Add(ctx context.Context, key K, value V, ttl time.Duration) bool
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
