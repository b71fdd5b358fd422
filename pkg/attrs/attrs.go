// Package attrs provides the durable tier of instance state persistence:
// string attributes attached to host elements (blocks), keyed by element
// id.
//
// The host normally stores these attributes itself. The backends here let
// the engine run embedded in other processes:
//   - [MemoryStore]: in-process map, used in tests and ephemeral servers
//   - [FileStore]: one JSON file per element under a config directory
//   - [SQLiteStore]: a single sqlite table, pure Go driver
//   - [MongoStore]: one document per element
//   - [S3Store]: one object per element in an S3-compatible bucket
//
// All backends share the host's write semantics: [Store.Write] merges the
// given attributes into the existing set, and an empty value removes the
// attribute.
package attrs

import (
	"context"
	"maps"
	"strings"
)

// Store persists element attributes.
type Store interface {
	// Read returns all attributes of an element. A missing element yields
	// an empty map and no error.
	Read(ctx context.Context, id string) (map[string]string, error)

	// Write merges attrs into the element's attributes in one batch.
	// Empty values delete the attribute.
	Write(ctx context.Context, id string, attrs map[string]string) error

	// Close releases resources held by the store.
	Close() error
}

// merge applies a write batch to current and reports whether anything
// changed. current must be non-nil.
func merge(current, batch map[string]string) bool {
	changed := false
	for k, v := range batch {
		old, ok := current[k]
		switch {
		case v == "" && ok:
			delete(current, k)
			changed = true
		case v != "" && (!ok || old != v):
			current[k] = v
			changed = true
		}
	}
	return changed
}

// WithPrefix returns the subset of attrs whose names start with prefix.
func WithPrefix(attrs map[string]string, prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range attrs {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

func clone(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
