// Package state implements per-instance key/value state with two-tier
// persistence.
//
// A [Store] belongs to exactly one visualization instance, identified by
// the embed point's stable id. On creation it restores from the fast tier
// (a [cache.Cache] entry holding the whole state map) or, when that entry
// is missing, from the host element's attributes carrying the
// [AttrPrefix] marker. Every write updates memory and mirrors the full map
// to the fast tier before returning. The durable tier is written once, in
// a single batch, by [Store.Flush] when the instance is disposed.
//
//	s := state.New(ctx, embedID, host.Attrs(), state.Options{Cache: c, Durable: d})
//	count := state.UseState(s, "count", 0)
//	count.Set(count.Get() + 1)
//	...
//	_ = s.Flush(ctx)
package state

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/attrs"
	"github.com/frostime/sy-query-view/pkg/cache"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/observability"
)

// AttrPrefix marks host element attributes that hold persisted state.
const AttrPrefix = "custom-qv-state-"

// Tiers reported to [observability.StateHooks.OnRestore].
const (
	TierFast    = "fast"
	TierDurable = "durable"
	TierInitial = "initial"
)

// Element is the attribute side of a host element.
type Element interface {
	SetAttr(name, value string)
}

// Options configures a [Store]. Every field is optional.
type Options struct {
	// Cache is the fast tier. Nil disables it.
	Cache cache.Cache

	// Keyer namespaces fast-tier keys. Defaults to [cache.DefaultKeyer].
	Keyer cache.Keyer

	// TTL bounds the lifetime of fast-tier entries. Zero means no expiry.
	TTL time.Duration

	// Durable receives the batched write at flush time. Nil disables it.
	Durable attrs.Store

	// Element is the host element the state belongs to. Flush copies the
	// batch onto it so a later restore from the element sees it.
	Element Element

	Logger *log.Logger
}

// Store holds the state of one instance.
type Store struct {
	id      string
	ctx     context.Context
	fast    cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	durable attrs.Store
	element Element
	logger  *log.Logger

	mu       sync.Mutex
	source   string
	restored map[string]json.RawMessage
	handles  map[string]entry
	order    []string
	closed   bool
}

// entry is the type-erased side of a Handle.
type entry interface {
	current() any
}

// New creates the store for instance id and restores its persisted state.
// hostAttrs are the attributes of the instance's host element; they are
// consulted only when the fast tier has no entry. ctx bounds the restore
// and is kept, without its cancellation, for fast-tier mirroring.
func New(ctx context.Context, id string, hostAttrs map[string]string, opts Options) *Store {
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Store{
		id:      id,
		ctx:     context.WithoutCancel(ctx),
		fast:    opts.Cache,
		keyer:   opts.Keyer,
		ttl:     opts.TTL,
		durable: opts.Durable,
		element: opts.Element,
		logger:  opts.Logger,
		handles: make(map[string]entry),
	}
	s.restore(ctx, hostAttrs)
	return s
}

func (s *Store) restore(ctx context.Context, hostAttrs map[string]string) {
	if s.fast != nil {
		data, ok, err := s.fast.Get(ctx, s.keyer.StateKey(s.id))
		switch {
		case err != nil:
			s.logger.Warn("fast-tier state read failed", "instance", s.id, "err", err)
		case ok:
			var m map[string]json.RawMessage
			if err := json.Unmarshal(data, &m); err == nil {
				s.restored, s.source = m, TierFast
				observability.State().OnRestore(ctx, TierFast, len(m), nil)
				return
			}
			s.logger.Warn("discarding malformed fast-tier state", "instance", s.id)
		}
	}

	fields, errs := DecodeAttrs(hostAttrs)
	for _, e := range errs {
		s.logger.Warn("skipping persisted state field", "instance", s.id, "err", e)
	}
	if len(fields) > 0 {
		s.restored, s.source = fields, TierDurable
		observability.State().OnRestore(ctx, TierDurable, len(fields), nil)
		return
	}
	s.source = TierInitial
	observability.State().OnRestore(ctx, TierInitial, 0, nil)
}

// DecodeAttrs extracts persisted state from host element attributes. Each
// attribute is decoded independently; malformed ones are reported with an
// [errors.ErrCodeRestoreFailure] error and left out of the result.
func DecodeAttrs(hostAttrs map[string]string) (map[string]json.RawMessage, []error) {
	out := make(map[string]json.RawMessage)
	var errs []error
	for name, raw := range hostAttrs {
		key, ok := strings.CutPrefix(name, AttrPrefix)
		if !ok || key == "" {
			continue
		}
		if !json.Valid([]byte(raw)) {
			errs = append(errs, errors.New(errors.ErrCodeRestoreFailure, "attribute %s is not valid JSON", name))
			continue
		}
		out[key] = json.RawMessage(raw)
	}
	return out, errs
}

// ID returns the instance identity.
func (s *Store) ID() string { return s.id }

// Source reports which tier the store was restored from.
func (s *Store) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Keys returns the keys of every handle created so far, in creation order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Snapshot encodes the current value of every key.
func (s *Store) Snapshot() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked starts from the restored state and overlays every live
// handle, so keys this run never touched survive the next mirror or flush.
func (s *Store) snapshotLocked() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(s.restored)+len(s.handles))
	maps.Copy(out, s.restored)
	for _, k := range s.order {
		data, err := json.Marshal(s.handles[k].current())
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "encode state %q", k)
		}
		out[k] = data
	}
	return out, nil
}

// mirrorLocked writes the whole state map to the fast tier.
func (s *Store) mirrorLocked() {
	if s.fast == nil {
		return
	}
	snap, err := s.snapshotLocked()
	if err != nil {
		s.logger.Warn("state not mirrored", "instance", s.id, "err", err)
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("state not mirrored", "instance", s.id, "err", err)
		return
	}
	if err := s.fast.Set(s.ctx, s.keyer.StateKey(s.id), data, s.ttl); err != nil {
		s.logger.Warn("fast-tier state write failed", "instance", s.id, "err", err)
	}
}

// Flush writes every key to the durable tier in one batched call and onto
// the host element, if any. Only the first call writes; later calls return
// nil. After Flush the store is
// closed and writes through its handles are ignored.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	snap, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return errors.Wrap(errors.ErrCodeFlushFailure, err, "flush state of %s", s.id)
	}
	if len(snap) == 0 {
		return nil
	}

	batch := make(map[string]string, len(snap))
	for k, v := range snap {
		batch[AttrPrefix+k] = string(v)
	}
	if s.element != nil {
		for name, v := range batch {
			s.element.SetAttr(name, v)
		}
	}
	if s.durable == nil {
		return nil
	}
	start := time.Now()
	err = s.durable.Write(ctx, s.id, batch)
	observability.State().OnFlush(ctx, len(batch), time.Since(start), err)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFlushFailure, err, "flush state of %s", s.id)
	}
	s.logger.Debug("state flushed", "instance", s.id, "keys", len(batch))
	return nil
}

// Closed reports whether the store has been flushed.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PurgeFastTier drops every cached state entry so the next restore reads
// the durable tier.
func PurgeFastTier(ctx context.Context, c cache.Cache, keyer cache.Keyer) error {
	if c == nil {
		return nil
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return c.Clear(ctx, keyer.StatePrefix())
}

// ReadDurable returns the persisted state of an instance straight from the
// durable tier.
func ReadDurable(ctx context.Context, store attrs.Store, id string) (map[string]json.RawMessage, []error, error) {
	all, err := store.Read(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	fields, errs := DecodeAttrs(all)
	return fields, errs, nil
}

// ClearDurable removes every persisted state attribute of an instance.
func ClearDurable(ctx context.Context, store attrs.Store, id string) (int, error) {
	all, err := store.Read(ctx, id)
	if err != nil {
		return 0, err
	}
	batch := attrs.WithPrefix(all, AttrPrefix)
	if len(batch) == 0 {
		return 0, nil
	}
	for k := range batch {
		batch[k] = ""
	}
	return len(batch), store.Write(ctx, id, batch)
}
