package state

import (
	"encoding/json"
	"slices"

	"github.com/frostime/sy-query-view/pkg/errors"
)

// Handle is the typed accessor for one state key.
type Handle[T any] struct {
	s       *Store
	key     string
	value   T
	effects []func(newValue, current T)
}

func (h *Handle[T]) current() any { return h.value }

// UseState returns the handle for key, creating it on first use. A new
// handle starts from the restored value when one exists and decodes into
// T, otherwise from initial. Calling UseState again with the same key and
// type returns the same handle.
func UseState[T any](s *Store, key string, initial T) *Handle[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.handles[key]; ok {
		if h, ok := e.(*Handle[T]); ok {
			return h
		}
		s.logger.Warn("state key reused with a different type; resetting", "instance", s.id, "key", key)
	} else {
		s.order = append(s.order, key)
	}

	h := &Handle[T]{s: s, key: key, value: initial}
	if raw, ok := s.restored[key]; ok {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			err = errors.Wrap(errors.ErrCodeRestoreFailure, err, "state %q", key)
			s.logger.Warn("restoring initial value", "instance", s.id, "err", err)
		} else {
			h.value = v
		}
	}
	s.handles[key] = h
	return h
}

// Key returns the state key.
func (h *Handle[T]) Key() string { return h.key }

// Get returns the current value.
func (h *Handle[T]) Get() T {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.value
}

// Set stores v, mirrors the instance state to the fast tier and then runs
// the registered effects in order. Set on a flushed store is ignored.
func (h *Handle[T]) Set(v T) {
	h.s.mu.Lock()
	if h.s.closed {
		h.s.mu.Unlock()
		h.s.logger.Debug("ignoring write to disposed state", "instance", h.s.id, "key", h.key)
		return
	}
	h.value = v
	h.s.mirrorLocked()
	effects := slices.Clone(h.effects)
	h.s.mu.Unlock()

	for _, fn := range effects {
		fn(v, h.Get())
	}
}

// Update sets the value computed by fn from the current one.
func (h *Handle[T]) Update(fn func(T) T) {
	h.Set(fn(h.Get()))
}

// Effect registers fn to run synchronously after every write with the
// written value and the value current when fn runs.
func (h *Handle[T]) Effect(fn func(newValue, current T)) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.effects = append(h.effects, fn)
}

// Derived returns an accessor computing fn over the handle's current value
// on every call. Results are not cached.
func Derived[T, R any](h *Handle[T], fn func(T) R) func() R {
	return func() R { return fn(h.Get()) }
}
