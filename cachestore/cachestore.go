package cachestore

import (
	"context"
	"time"
)

type CacheStore interface {
	// The boolean is false on a miss (including expired entries).
	Get(ctx context.Context, name, key string) (string, bool, error)
	// A zero ttl means the store's default TTL.
	Set(ctx context.Context, name, key string, val string, ttl time.Duration) error
	Purge(ctx context.Context, name, key string) error
}
