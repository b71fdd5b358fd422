// Package surface models the output side of a visualization: the host
// element an embed point provides and the single root container the
// engine owns inside it.
//
// The engine appends and removes [Fragment] values on its [Surface] and
// never touches anything else on the [Host] except normalizing the size
// overrides the host imposes. Host-side changes are delivered to
// observers as [Mutation] values.
package surface

import (
	"html/template"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// Fragment is one attachable unit of rendered output.
type Fragment struct {
	// ID is unique within the owning surface.
	ID string

	// Kind names the view that produced the fragment ("table", "error", ...).
	Kind string

	HTML  template.HTML
	Attrs map[string]string

	mu      sync.Mutex
	dispose func()
}

// NewFragment creates a fragment with a fresh random id.
func NewFragment(kind string, html template.HTML) *Fragment {
	return &Fragment{ID: uuid.NewString(), Kind: kind, HTML: html}
}

// SetAttr sets a data attribute rendered on the fragment wrapper.
func (f *Fragment) SetAttr(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Attrs == nil {
		f.Attrs = make(map[string]string)
	}
	f.Attrs[name] = value
}

func (f *Fragment) attrs() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.Attrs)
}

// OnDispose attaches a cleanup function owned by the fragment itself. A
// second call chains the functions, earlier first.
func (f *Fragment) OnDispose(fn func()) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev := f.dispose; prev != nil {
		f.dispose = func() { prev(); fn() }
		return
	}
	f.dispose = fn
}

// TakeDisposer returns the fragment's own disposer and detaches it, so it
// can be handed to a lifecycle controller exactly once.
func (f *Fragment) TakeDisposer() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn := f.dispose
	f.dispose = nil
	return fn
}
