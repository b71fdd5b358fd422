// Package queryview is the composition root of the engine: an [Instance]
// is the object a user script receives for one embed point, and a
// [Manager] tracks the instances of every open document.
//
//	qv, err := queryview.New(ctx, queryview.Options{ID: "20240101120000-abc1234", Source: src})
//	docs, err := qv.Query(ctx, "SELECT * FROM blocks WHERE type = 'd'")
//	qv.AddTable(ctx, docs.Pick("id", "content"), view.TableOptions{LinkIDs: true})
//	...
//	qv.Dispose(ctx)
//
// An instance owns one output surface, one state store, one lifecycle
// controller and its own view registry. Dispose runs every fragment
// disposer in attach order, detaches the host observers, flushes state to
// the durable tier in one batch and releases the surface. Calls made after
// disposal are no-ops.
package queryview

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/attrs"
	"github.com/frostime/sy-query-view/pkg/cache"
	"github.com/frostime/sy-query-view/pkg/collection"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/lifecycle"
	"github.com/frostime/sy-query-view/pkg/observability"
	"github.com/frostime/sy-query-view/pkg/query"
	"github.com/frostime/sy-query-view/pkg/record"
	"github.com/frostime/sy-query-view/pkg/state"
	"github.com/frostime/sy-query-view/pkg/surface"
	"github.com/frostime/sy-query-view/pkg/view"
)

// Options configures an [Instance].
type Options struct {
	// ID is the embed point identity. Required.
	ID string

	// DocID is the document containing the embed point.
	DocID string

	// Host is the element the instance renders into. When nil a detached
	// host is created whose attributes are read from Durable.
	Host *surface.Host

	Source query.Source
	Lookup record.Lookup

	// Fast and durable state tiers. Either may be nil.
	Cache    cache.Cache
	Keyer    cache.Keyer
	StateTTL time.Duration
	Durable  attrs.Store

	// Custom views loaded into the instance registry.
	Custom map[string]view.Definition

	Logger *log.Logger
}

// Script is user code run against an instance.
type Script func(ctx context.Context, qv *Instance) error

// Instance is one live visualization.
type Instance struct {
	id     string
	docID  string
	logger *log.Logger
	start  time.Time

	mu       sync.Mutex
	host     *surface.Host
	root     *surface.Surface
	store    *state.Store
	ctrl     *lifecycle.Controller
	views    *view.Registry
	source   query.Source
	lookup   record.Lookup
	disposed bool
	custom   int
	onClose  []func()
}

// New creates an instance, restores its state and mounts its surface.
func New(ctx context.Context, opts Options) (*Instance, error) {
	if err := errors.ValidateInstanceID(opts.ID); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("instance", opts.ID)

	// The durable tier backs the element attributes: a detached host is
	// seeded from it, a supplied host overrides it key by key.
	restoreAttrs, err := durableAttrs(ctx, opts.Durable, opts.ID)
	if err != nil {
		logger.Warn("durable state unavailable", "err", err)
	}
	host := opts.Host
	if host == nil {
		host = surface.NewHost(opts.ID, restoreAttrs)
	} else {
		if restoreAttrs == nil {
			restoreAttrs = make(map[string]string)
		}
		maps.Copy(restoreAttrs, host.Attrs())
	}
	lookup := opts.Lookup
	if lookup == nil {
		if l, ok := opts.Source.(record.Lookup); ok {
			lookup = l
		}
	}

	i := &Instance{
		id:     opts.ID,
		docID:  opts.DocID,
		logger: logger,
		start:  time.Now(),
		host:   host,
		source: opts.Source,
		lookup: lookup,
		ctrl:   lifecycle.New(logger),
		views:  view.NewRegistry(logger),
	}
	i.store = state.New(ctx, opts.ID, restoreAttrs, state.Options{
		Cache:   opts.Cache,
		Keyer:   opts.Keyer,
		TTL:     opts.StateTTL,
		Durable: opts.Durable,
		Element: host,
		Logger:  logger,
	})
	i.root = host.Mount()
	i.ctrl.Watch(host, i.root, func() {
		logger.Debug("root removed by host")
		if err := i.Dispose(context.Background()); err != nil {
			logger.Error("dispose after host removal", "err", err)
		}
	})
	if len(opts.Custom) > 0 {
		view.LoadCustom(i.views, i, opts.Custom)
	}

	observability.Lifecycle().OnInstanceStart(ctx, i.docID, i.id)
	return i, nil
}

func durableAttrs(ctx context.Context, store attrs.Store, id string) (map[string]string, error) {
	if store == nil {
		return nil, nil
	}
	return store.Read(ctx, id)
}

// ID returns the embed point identity.
func (i *Instance) ID() string { return i.id }

// DocID returns the containing document id.
func (i *Instance) DocID() string { return i.docID }

// Logger returns the instance logger.
func (i *Instance) Logger() *log.Logger { return i.logger }

// OnDispose registers fn to run with the fragment disposers.
func (i *Instance) OnDispose(fn func()) {
	i.mu.Lock()
	i.custom++
	id := fmt.Sprintf("custom:%d", i.custom)
	i.mu.Unlock()
	i.ctrl.Register(id, fn)
}

// Host returns the host element.
func (i *Instance) Host() *surface.Host { return i.host }

// Root returns the output surface.
func (i *Instance) Root() *surface.Surface { return i.root }

// State returns the instance state store, for use with [state.UseState].
func (i *Instance) State() *state.Store { return i.store }

// Views returns the instance view registry.
func (i *Instance) Views() *view.Registry { return i.views }

// Lifecycle returns the instance lifecycle controller.
func (i *Instance) Lifecycle() *lifecycle.Controller { return i.ctrl }

// Disposed reports whether Dispose has run.
func (i *Instance) Disposed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.disposed
}

// UseState returns the state handle for key, creating it with initial on
// first use.
func UseState[T any](i *Instance, key string, initial T) *state.Handle[T] {
	return state.UseState(i.store, key, initial)
}

// live returns the fields a call needs, or false after disposal.
func (i *Instance) live() (*surface.Surface, query.Source, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return nil, nil, false
	}
	return i.root, i.source, true
}

// Query runs stmt against the instance source. A nil result is an empty
// collection. After disposal it returns an empty collection.
func (i *Instance) Query(ctx context.Context, stmt string, args ...any) (*collection.Collection, error) {
	_, src, ok := i.live()
	if !ok {
		return collection.Empty(), nil
	}
	if src == nil {
		return nil, errors.New(errors.ErrCodeUnsupported, "instance has no query source")
	}
	rows, err := src.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return collection.New(rows...), nil
}

// Wrap turns v into a collection.
func (i *Instance) Wrap(v any) *collection.Collection { return collection.Wrap(v) }

// RecordView wraps r with the instance lookup.
func (i *Instance) RecordView(r record.Record) *record.View {
	return record.NewView(r, i.lookup)
}

// RecordViews wraps every record of c with the instance lookup.
func (i *Instance) RecordViews(c *collection.Collection) []*record.View {
	return c.Views(i.lookup)
}

// Build constructs a fragment with the named view without attaching it.
func (i *Instance) Build(ctx context.Context, name string, args ...any) (*surface.Fragment, error) {
	return i.views.Build(ctx, name, args...)
}

// Call dispatches a script-level view call: "table" builds a fragment,
// "addTable" builds and attaches it.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (*surface.Fragment, error) {
	ctor, attach, ok := i.views.Resolve(name)
	if !ok {
		return nil, errors.New(errors.ErrCodeViewNotFound, "no view named %q", name)
	}
	if !attach {
		return view.Invoke(ctx, name, ctor, args...)
	}
	return i.add(ctx, name, ctor, args...)
}

// Add builds a fragment with the named view and attaches it. Fragments
// attach in call order. A render failure attaches an inline error fragment
// in its place and returns it; argument errors are returned to the caller.
func (i *Instance) Add(ctx context.Context, name string, args ...any) (*surface.Fragment, error) {
	ctor, _, ok := i.views.Resolve(name)
	if !ok {
		return nil, errors.New(errors.ErrCodeViewNotFound, "no view named %q", name)
	}
	return i.add(ctx, name, ctor, args...)
}

func (i *Instance) add(ctx context.Context, name string, ctor view.Constructor, args ...any) (*surface.Fragment, error) {
	if _, _, ok := i.live(); !ok {
		return nil, nil
	}
	frag, err := view.Invoke(ctx, name, ctor, args...)
	if err != nil {
		if !errors.Is(err, errors.ErrCodeRenderFailure) {
			return nil, err
		}
		i.logger.Warn("view failed", "view", name, "err", err)
		frag = view.ErrorFragment(name, err)
	}
	return i.Attach(frag)
}

// Attach appends a prebuilt fragment and records its own disposer.
func (i *Instance) Attach(f *surface.Fragment) (*surface.Fragment, error) {
	root, _, ok := i.live()
	if !ok {
		if fn := f.TakeDisposer(); fn != nil {
			fn()
		}
		return nil, nil
	}
	if err := root.Append(f); err != nil {
		return nil, err
	}
	if fn := f.TakeDisposer(); fn != nil {
		i.ctrl.Register(f.ID, fn)
	}
	return f, nil
}

// AddTable attaches a table view.
func (i *Instance) AddTable(ctx context.Context, data any, opts view.TableOptions) (*surface.Fragment, error) {
	return i.Add(ctx, view.CapTable.String(), data, opts)
}

// AddList attaches a list view.
func (i *Instance) AddList(ctx context.Context, data any, opts view.ListOptions) (*surface.Fragment, error) {
	return i.Add(ctx, view.CapList.String(), data, opts)
}

// AddText attaches a text paragraph.
func (i *Instance) AddText(ctx context.Context, text string) (*surface.Fragment, error) {
	return i.Add(ctx, view.CapText.String(), text)
}

// AddMarkdown attaches markdown, converted by convert when non-nil.
func (i *Instance) AddMarkdown(ctx context.Context, src string, convert view.MarkdownConverter) (*surface.Fragment, error) {
	if convert == nil {
		return i.Add(ctx, view.CapMarkdown.String(), src)
	}
	return i.Add(ctx, view.CapMarkdown.String(), src, convert)
}

// AddMermaid attaches a mermaid diagram.
func (i *Instance) AddMermaid(ctx context.Context, code string) (*surface.Fragment, error) {
	return i.Add(ctx, view.CapMermaid.String(), code)
}

// AddGraph attaches a node-link diagram.
func (i *Instance) AddGraph(ctx context.Context, data any, opts view.GraphOptions) (*surface.Fragment, error) {
	return i.Add(ctx, view.CapGraph.String(), data, opts)
}

// AddEmbed attaches references to host blocks.
func (i *Instance) AddEmbed(ctx context.Context, blocks any) (*surface.Fragment, error) {
	return i.Add(ctx, view.CapEmbed.String(), blocks)
}

// RemoveView runs the disposer of the fragment id and detaches it. It
// reports false when id is not attached.
func (i *Instance) RemoveView(id string) bool {
	root, _, ok := i.live()
	if !ok {
		return false
	}
	if _, found := root.Get(id); !found {
		return false
	}
	i.ctrl.Run(id)
	root.Remove(id)
	return true
}

// ReplaceView puts f in the slot of fragment id. The old fragment's
// disposer runs; f takes over id, and its own disposer and dispose (if
// given) are recorded under id, in that order. If f is already attached
// elsewhere on the surface it is moved, keeping its recorded disposer.
func (i *Instance) ReplaceView(id string, f *surface.Fragment, dispose func()) bool {
	root, _, ok := i.live()
	if !ok || f == nil {
		return false
	}
	if _, found := root.Get(id); !found {
		return false
	}

	var chain []func()
	if f.ID != id {
		if _, attached := root.Get(f.ID); attached {
			root.Remove(f.ID)
			chain = append(chain, i.ctrl.Forget(f.ID))
		}
	}
	chain = append(chain, f.TakeDisposer(), dispose)

	i.ctrl.Run(id)
	if _, ok := root.Replace(id, f); !ok {
		return false
	}
	for _, fn := range chain {
		if fn != nil {
			i.ctrl.Merge(id, fn)
		}
	}
	return true
}

// Run executes script. Errors and panics are logged and shown as an
// inline error fragment; the error is also returned.
func (i *Instance) Run(ctx context.Context, script Script) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeRenderFailure, "script panicked: %v", r)
		}
		if err != nil {
			i.logger.Error("script failed", "err", err)
			i.Attach(view.ErrorFragment("", err))
		}
	}()
	return script(ctx, i)
}

// WriteHTML renders the output surface.
func (i *Instance) WriteHTML(w io.Writer) error {
	return i.root.WriteHTML(w)
}

// onDisposed registers fn to run after disposal completes.
func (i *Instance) onDisposed(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onClose = append(i.onClose, fn)
}

// Dispose tears the instance down. Only the first call does anything; it
// returns the state flush error, if any.
func (i *Instance) Dispose(ctx context.Context) error {
	var flushErr error
	n, first := i.ctrl.Dispose(
		func() { flushErr = i.store.Flush(ctx) },
		i.release,
	)
	if !first {
		return nil
	}
	i.mu.Lock()
	hooks := i.onClose
	i.onClose = nil
	i.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	observability.Lifecycle().OnInstanceDisposed(ctx, i.docID, i.id, n, time.Since(i.start))
	i.logger.Debug("instance disposed", "disposers", n)
	return flushErr
}

func (i *Instance) release() {
	i.mu.Lock()
	i.disposed = true
	root := i.root
	i.source = nil
	i.lookup = nil
	i.mu.Unlock()
	i.host.Release(root)
}
