package surface

import (
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MutationKind classifies host-side changes.
type MutationKind int

const (
	// ChildRemoved: the engine's root container was removed from the host.
	ChildRemoved MutationKind = iota

	// StyleChanged: a style property of the host element changed.
	StyleChanged

	// AttrChanged: a non-style attribute of the host element changed.
	AttrChanged
)

func (k MutationKind) String() string {
	switch k {
	case ChildRemoved:
		return "child-removed"
	case StyleChanged:
		return "style"
	case AttrChanged:
		return "attribute"
	default:
		return "unknown"
	}
}

// Mutation describes one host change.
type Mutation struct {
	Kind MutationKind

	// Target is the removed child's id for ChildRemoved, the property or
	// attribute name otherwise.
	Target string
	Value  string
}

// Host is the element an embed point provides. It carries the host's
// attributes (durable state lives here), a style map, and owns at most one
// engine root.
type Host struct {
	id string

	mu        sync.Mutex
	attrs     map[string]string
	style     map[string]string
	root      *Surface
	observers map[int]func(Mutation)
	nextObs   int
}

// NewHost creates a host element with the given id and attributes.
func NewHost(id string, attrs map[string]string) *Host {
	return &Host{
		id:        id,
		attrs:     maps.Clone(attrs),
		style:     make(map[string]string),
		observers: make(map[int]func(Mutation)),
	}
}

// ID returns the host element id, the instance identity.
func (h *Host) ID() string { return h.id }

// Attrs returns a copy of the host attributes.
func (h *Host) Attrs() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := maps.Clone(h.attrs)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// Attr returns one host attribute.
func (h *Host) Attr(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attrs[name]
}

// SetAttr sets a host attribute and notifies observers.
func (h *Host) SetAttr(name, value string) {
	h.mu.Lock()
	if h.attrs == nil {
		h.attrs = make(map[string]string)
	}
	h.attrs[name] = value
	h.mu.Unlock()
	h.notify(Mutation{Kind: AttrChanged, Target: name, Value: value})
}

// Style returns a style property.
func (h *Host) Style(prop string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.style[prop]
}

// SetStyle sets a style property and notifies observers when it changed.
func (h *Host) SetStyle(prop, value string) {
	h.mu.Lock()
	if h.style[prop] == value {
		h.mu.Unlock()
		return
	}
	h.style[prop] = value
	h.mu.Unlock()
	h.notify(Mutation{Kind: StyleChanged, Target: prop, Value: value})
}

// Mount creates the engine root inside the host, replacing (and
// reporting as removed) any previous root.
func (h *Host) Mount() *Surface {
	s := &Surface{id: uuid.NewString()}
	h.mu.Lock()
	old := h.root
	h.root = s
	h.mu.Unlock()
	if old != nil {
		h.notify(Mutation{Kind: ChildRemoved, Target: old.id})
	}
	return s
}

// Root returns the current engine root, or nil.
func (h *Host) Root() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.root
}

// Unmount removes the engine root from the host, as the host editor does
// when it destroys or re-renders the embed.
func (h *Host) Unmount() {
	h.mu.Lock()
	old := h.root
	h.root = nil
	h.mu.Unlock()
	if old != nil {
		h.notify(Mutation{Kind: ChildRemoved, Target: old.id})
	}
}

// Release unmounts s if it is still the current root. It reports whether
// it did.
func (h *Host) Release(s *Surface) bool {
	h.mu.Lock()
	if h.root == nil || h.root != s {
		h.mu.Unlock()
		return false
	}
	h.root = nil
	h.mu.Unlock()
	h.notify(Mutation{Kind: ChildRemoved, Target: s.id})
	return true
}

// Observe registers fn for host mutations. The returned function removes
// the observer.
func (h *Host) Observe(fn func(Mutation)) (cancel func()) {
	h.mu.Lock()
	id := h.nextObs
	h.nextObs++
	h.observers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.observers, id)
		h.mu.Unlock()
	}
}

// Observers returns the number of registered observers.
func (h *Host) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

func (h *Host) notify(m Mutation) {
	h.mu.Lock()
	ids := slices.Sorted(maps.Keys(h.observers))
	fns := make([]func(Mutation), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.observers[id])
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}
