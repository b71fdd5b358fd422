package queryview

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/events"
	"github.com/frostime/sy-query-view/pkg/state"
	"github.com/frostime/sy-query-view/pkg/surface"
)

// Manager owns the instances of every open document, keyed by document id
// and embed id. Instances are registered on creation and removed when they
// are disposed, so the registry never outlives its documents.
type Manager struct {
	base   Options
	logger *log.Logger

	mu     sync.Mutex
	docs   map[string]map[string]*Instance
	embeds map[embedKey]*embedLock
}

type embedKey struct{ doc, embed string }

// embedLock serializes renders of one embed point. refs counts the renders
// holding or waiting for it.
type embedLock struct {
	mu   sync.Mutex
	refs int
}

// Stats summarizes the registry.
type Stats struct {
	Documents int `json:"documents"`
	Instances int `json:"instances"`
}

// NewManager creates a manager. base supplies the shared collaborators
// (source, caches, durable store, custom views) for every instance; its
// ID, DocID and Host are ignored.
func NewManager(base Options) *Manager {
	if base.Logger == nil {
		base.Logger = log.Default()
	}
	return &Manager{
		base:   base,
		logger: base.Logger,
		docs:   make(map[string]map[string]*Instance),
		embeds: make(map[embedKey]*embedLock),
	}
}

// Render creates the instance for an embed point and runs script in it.
// An existing instance for the same embed is disposed first, so its state
// is flushed before the new one restores. Renders of one embed point are
// serialized up to the end of their script; scripts must not render their
// own embed point. host may be nil. The script error, if any, is returned
// along with the instance.
func (m *Manager) Render(ctx context.Context, docID, embedID string, host *surface.Host, script Script) (*Instance, error) {
	unlock := m.lockEmbed(docID, embedID)
	defer unlock()

	if prev := m.Get(docID, embedID); prev != nil {
		m.dispose(ctx, prev)
	}

	opts := m.base
	opts.ID, opts.DocID, opts.Host = embedID, docID, host
	inst, err := New(ctx, opts)
	if err != nil {
		return nil, err
	}
	if displaced := m.register(inst); displaced != nil {
		m.dispose(ctx, displaced)
	}
	if script == nil {
		return inst, nil
	}
	return inst, inst.Run(ctx, script)
}

func (m *Manager) dispose(ctx context.Context, inst *Instance) {
	if err := inst.Dispose(ctx); err != nil {
		m.logger.Warn("previous instance flush failed", "doc", inst.docID, "embed", inst.id, "err", err)
	}
}

func (m *Manager) lockEmbed(docID, embedID string) (unlock func()) {
	key := embedKey{docID, embedID}
	m.mu.Lock()
	l, ok := m.embeds[key]
	if !ok {
		l = &embedLock{}
		m.embeds[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.embeds, key)
		}
		m.mu.Unlock()
	}
}

// register records inst and returns the instance it replaced, if any.
func (m *Manager) register(inst *Instance) (displaced *Instance) {
	m.mu.Lock()
	embeds, ok := m.docs[inst.docID]
	if !ok {
		embeds = make(map[string]*Instance)
		m.docs[inst.docID] = embeds
	}
	displaced = embeds[inst.id]
	embeds[inst.id] = inst
	m.mu.Unlock()

	inst.onDisposed(func() { m.unregister(inst) })
	if displaced == inst {
		return nil
	}
	return displaced
}

func (m *Manager) unregister(inst *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	embeds := m.docs[inst.docID]
	if embeds[inst.id] != inst {
		return
	}
	delete(embeds, inst.id)
	if len(embeds) == 0 {
		delete(m.docs, inst.docID)
	}
}

// Get returns the live instance of an embed point, or nil.
func (m *Manager) Get(docID, embedID string) *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[docID][embedID]
}

// Instances returns the live instances of a document in embed id order.
func (m *Manager) Instances(docID string) []*Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	embeds := m.docs[docID]
	out := make([]*Instance, 0, len(embeds))
	for _, id := range slices.Sorted(maps.Keys(embeds)) {
		out = append(out, embeds[id])
	}
	return out
}

// Documents returns the ids of documents with live instances.
func (m *Manager) Documents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.docs))
}

// Stats returns registry counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Documents: len(m.docs)}
	for _, embeds := range m.docs {
		s.Instances += len(embeds)
	}
	return s
}

// DestroyDocument disposes every instance of docID, flushing their state,
// and purges the document entry. Flush errors are joined.
func (m *Manager) DestroyDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	embeds := m.docs[docID]
	delete(m.docs, docID)
	m.mu.Unlock()

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(embeds)) {
		if err := embeds[id].Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Debug("document destroyed", "doc", docID, "instances", len(embeds))
	return errors.Join(errs...)
}

// PurgeFastTier drops all cached state so the next restores read the
// durable tier.
func (m *Manager) PurgeFastTier(ctx context.Context) error {
	return state.PurgeFastTier(ctx, m.base.Cache, m.base.Keyer)
}

// Subscribe connects the manager to a host event bus. The returned
// function disconnects it.
func (m *Manager) Subscribe(bus *events.Bus) (cancel func()) {
	return bus.Subscribe(m.handle)
}

func (m *Manager) handle(ctx context.Context, e events.Event) {
	switch {
	case e.Kind == events.DocumentDestroyed:
		if err := m.DestroyDocument(ctx, e.DocID); err != nil {
			m.logger.Error("destroy document", "doc", e.DocID, "err", err)
		}
	case e.Kind.IsSync():
		if err := m.PurgeFastTier(ctx); err != nil {
			m.logger.Error("purge fast tier", "event", e.Kind, "err", err)
		}
	}
}

// Close destroys every document.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, doc := range m.Documents() {
		if err := m.DestroyDocument(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
