// Package view maps view names to fragment constructors.
//
// Built-in views come from a static table indexed by [Capability]. Custom
// views are registered at runtime with [Registry.Register] or loaded from
// [Definition] values. Lookup is case-insensitive, and a name spelled
// "add<Name>" resolves to the same view with the attach flag set, which the
// instance uses to append the constructed fragment to its surface.
//
//	r := view.NewRegistry(logger)
//	ctor, attach, ok := r.Resolve("addTable")
//	frag, err := r.Build(ctx, "table", rows)
package view

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/observability"
	"github.com/frostime/sy-query-view/pkg/surface"
)

// Constructor builds one fragment from script arguments.
type Constructor func(ctx context.Context, args ...any) (*surface.Fragment, error)

// Registry is the name table of one instance.
type Registry struct {
	logger *log.Logger

	mu      sync.RWMutex
	entries map[string]*entry // normalized name or alias -> entry
	names   []string          // canonical names in registration order
}

type entry struct {
	name    string
	cap     Capability
	builtin bool
	ctor    Constructor
}

// NewRegistry creates a registry holding every built-in view.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{logger: logger, entries: make(map[string]*entry)}
	for c := range numCapabilities {
		b := builtins[c]
		e := &entry{name: b.name, cap: c, builtin: true, ctor: b.ctor}
		r.publish(e, b.aliases)
	}
	return r
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) publish(e *entry, aliases []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(e.name)
	if prev, ok := r.entries[key]; ok && normalize(prev.name) == key {
		r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == prev.name })
	}
	r.entries[key] = e
	r.names = append(r.names, e.name)
	for _, a := range aliases {
		r.entries[normalize(a)] = e
	}
}

// Register publishes ctor under name and every alias. Invalid or reserved
// names are rejected with a logged warning and an
// [errors.ErrCodeInvalidRegistration] error; nothing panics. Invalid
// aliases are skipped individually. Registering an existing name replaces
// it.
func (r *Registry) Register(name string, ctor Constructor, aliases ...string) error {
	if err := errors.ValidateViewName(name); err != nil {
		r.logger.Warn("view registration rejected", "name", name, "err", err)
		return err
	}
	if ctor == nil {
		err := errors.New(errors.ErrCodeInvalidRegistration, "view %q has no constructor", name)
		r.logger.Warn("view registration rejected", "name", name, "err", err)
		return err
	}
	var ok []string
	for _, a := range aliases {
		if err := errors.ValidateViewName(a); err != nil {
			r.logger.Warn("skipping view alias", "name", name, "alias", a, "err", err)
			continue
		}
		ok = append(ok, a)
	}
	if _, exists := r.lookup(name); exists {
		r.logger.Warn("replacing view", "name", name)
	}
	r.publish(&entry{name: name, cap: -1, ctor: ctor}, ok)
	return nil
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	return e, ok
}

// Resolve finds the view for name. attach reports whether name used the
// "add" spelling. A name that is itself registered wins over its "add"
// reading.
func (r *Registry) Resolve(name string) (ctor Constructor, attach bool, ok bool) {
	if e, found := r.lookup(name); found {
		return e.ctor, false, true
	}
	n := normalize(name)
	if rest, cut := strings.CutPrefix(n, "add"); cut && rest != "" {
		if e, found := r.lookup(rest); found {
			return e.ctor, true, true
		}
	}
	return nil, false, false
}

// Capability returns the built-in capability behind name.
func (r *Registry) Capability(name string) (Capability, bool) {
	e, ok := r.lookup(name)
	if !ok || !e.builtin {
		return 0, false
	}
	return e.cap, true
}

// Names returns the canonical view names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Aliases returns every spelling that resolves to the canonical name.
func (r *Registry) Aliases(name string) []string {
	e, ok := r.lookup(name)
	if !ok {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k, v := range r.entries {
		if v == e && k != normalize(e.name) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Build constructs a fragment with the view registered under name. Errors
// and panics raised by the constructor come back as
// [errors.ErrCodeRenderFailure] errors.
func (r *Registry) Build(ctx context.Context, name string, args ...any) (*surface.Fragment, error) {
	ctor, _, ok := r.Resolve(name)
	if !ok {
		return nil, errors.New(errors.ErrCodeViewNotFound, "no view named %q", name)
	}
	return Invoke(ctx, name, ctor, args...)
}

// Invoke calls ctor with render hooks and panic recovery. A nil fragment
// from a successful call becomes an empty fragment of kind name.
func Invoke(ctx context.Context, name string, ctor Constructor, args ...any) (frag *surface.Fragment, err error) {
	hooks := observability.Render()
	hooks.OnRenderStart(ctx, name)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			frag, err = nil, errors.New(errors.ErrCodeRenderFailure, "view %s panicked: %v", name, rec)
		}
		hooks.OnRenderComplete(ctx, name, time.Since(start), err)
	}()

	frag, err = ctor(ctx, args...)
	if err != nil {
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.ErrCodeRenderFailure, err, "view %s", name)
		}
		return nil, err
	}
	if frag == nil {
		frag = surface.NewFragment(name, "")
	}
	if frag.Kind == "" {
		frag.Kind = name
	}
	return frag, nil
}

func argError(view string, i int, want string, got any) error {
	return errors.New(errors.ErrCodeInvalidInput, "%s: argument %d must be %s, got %s", view, i+1, want, typeName(got))
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
