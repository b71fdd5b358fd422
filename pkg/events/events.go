// Package events delivers host lifecycle notifications to the engine.
//
// The host announces when a document is destroyed and when a sync cycle
// starts, ends or fails. A [Bus] fans these out to in-process
// subscribers; [RedisBridge] carries them between processes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/errors"
)

// Kind names a host event.
type Kind string

const (
	DocumentDestroyed Kind = "document.destroyed"
	SyncStart         Kind = "sync.start"
	SyncEnd           Kind = "sync.end"
	SyncFail          Kind = "sync.fail"
)

// Kinds lists every known event kind.
var Kinds = []Kind{DocumentDestroyed, SyncStart, SyncEnd, SyncFail}

// IsSync reports whether k is one of the sync events.
func (k Kind) IsSync() bool {
	return k == SyncStart || k == SyncEnd || k == SyncFail
}

// Event is one host notification. DocID is set for document events.
type Event struct {
	Kind  Kind      `json:"kind"`
	DocID string    `json:"doc_id,omitempty"`
	At    time.Time `json:"at"`
}

// Validate checks that e is a known event with the payload it requires.
func (e Event) Validate() error {
	if !slices.Contains(Kinds, e.Kind) {
		return errors.New(errors.ErrCodeInvalidInput, "unknown event kind %q", e.Kind)
	}
	if e.Kind == DocumentDestroyed && e.DocID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "%s requires a document id", e.Kind)
	}
	return nil
}

// Decode parses a JSON encoded event.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return e, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode event")
	}
	return e, e.Validate()
}

// Handler receives events.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	id    int
	kinds []Kind
	fn    Handler
}

// Bus is an in-process publish/subscribe channel. Handlers run
// synchronously on the publishing goroutine, in subscription order.
type Bus struct {
	logger *log.Logger

	mu   sync.RWMutex
	subs []subscription
	next int
}

// NewBus creates an empty bus. A nil logger means log.Default().
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn for the given kinds, or for every kind when none
// are given. The returned function removes the subscription.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, kinds: kinds, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish validates e and delivers it. A panicking handler is logged and
// does not stop delivery to the others. It returns the number of handlers
// that received the event.
func (b *Bus) Publish(ctx context.Context, e Event) (int, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	n := 0
	for _, s := range subs {
		if len(s.kinds) > 0 && !slices.Contains(s.kinds, e.Kind) {
			continue
		}
		b.deliver(ctx, s, e)
		n++
	}
	b.logger.Debug("event published", "kind", e.Kind, "doc", e.DocID, "handlers", n)
	return n, nil
}

func (b *Bus) deliver(ctx context.Context, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "kind", e.Kind, "panic", fmt.Sprint(r))
		}
	}()
	s.fn(ctx, e)
}
