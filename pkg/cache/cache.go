// Package cache provides the fast tier of instance state persistence.
//
// A [Cache] is a byte-oriented key/value store with optional TTLs. State
// stores mirror each instance's state map into it on every write so that a
// re-rendered embed restores instantly, before the durable tier has been
// consulted. Entries are disposable: [Cache.Clear] drops a whole key
// prefix, which is how a host sync event invalidates every cached state.
//
// Backends:
//   - [MemoryCache]: process-local map, the default for embedding
//   - [FileCache]: JSON entry files under a cache directory, for the CLI
//   - [RedisCache]: shared cache for multi-process servers
//   - [NullCache]: never stores anything
package cache

import (
	"context"
	"time"
)

// Cache is the fast-tier storage contract.
type Cache interface {
	// Get returns the value for key and whether it was found.
	// Expired entries are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key starting with prefix. An empty prefix
	// clears the whole cache.
	Clear(ctx context.Context, prefix string) error

	// Close releases resources held by the cache.
	Close() error
}
