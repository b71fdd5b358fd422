package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StatePrefix is the key namespace of instance state entries.
const StatePrefix = "state:"

// Keyer builds cache keys. Wrap it with [NewScopedKeyer] to isolate
// workspaces that share one backend.
type Keyer interface {
	// StateKey returns the fast-tier key of an instance's state map.
	StateKey(instanceID string) string

	// StatePrefix returns the prefix shared by every state key.
	StatePrefix() string
}

// DefaultKeyer produces unscoped keys of the form "state:<id>".
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) StateKey(instanceID string) string { return StatePrefix + instanceID }
func (DefaultKeyer) StatePrefix() string               { return StatePrefix }

// ScopedKeyer prefixes every key of an inner keyer.
//
//	work := cache.NewScopedKeyer(nil, "ws:work:")
//	work.StateKey("2024-embed") // "ws:work:state:2024-embed"
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. A nil inner keyer means
// [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

func (k *ScopedKeyer) StateKey(instanceID string) string {
	return k.prefix + k.inner.StateKey(instanceID)
}

func (k *ScopedKeyer) StatePrefix() string {
	return k.prefix + k.inner.StatePrefix()
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// keyType returns the namespace of a key for metrics labels: the text
// before the last ':' separator, or "other".
func keyType(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 {
		return "other"
	}
	return key[:i]
}
