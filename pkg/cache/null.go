package cache

import (
	"context"
	"time"
)

// NullCache is the fast tier of a "none" cache backend. Mirrored state is
// discarded and every lookup misses, so each instance restores from its
// host element attributes or the durable store.
type NullCache struct{}

var _ Cache = NullCache{}

// NewNullCache returns a cache that holds no state.
func NewNullCache() Cache { return NullCache{} }

func (NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullCache) Delete(context.Context, string) error { return nil }
func (NullCache) Clear(context.Context, string) error { return nil }
func (NullCache) Close() error { return nil }
