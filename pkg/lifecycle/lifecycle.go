// Package lifecycle tracks fragment disposers for one visualization
// instance and runs them, exactly once and in registration order, when the
// instance is torn down.
package lifecycle

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

// State is the lifecycle state of a controller.
type State int

const (
	// Active accepts disposers.
	Active State = iota
	// Disposing is running disposers; repeated Dispose calls are absorbed.
	Disposing
	// Disposed is terminal.
	Disposed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Disposing:
		return "disposing"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Controller owns the disposers of one instance.
type Controller struct {
	logger *log.Logger

	mu        sync.Mutex
	state     State
	order     []string
	disposers map[string]func()
	trackers  []func()
}

// New creates an active controller. A nil logger means log.Default().
func New(logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{logger: logger, disposers: make(map[string]func())}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Len returns the number of registered disposers.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Has reports whether id has a disposer.
func (c *Controller) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.disposers[id]
	return ok
}

// IDs returns the registered ids in registration order.
func (c *Controller) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Register installs fn as the disposer of id. An existing disposer for id
// is run and discarded first, with a warning; the slot keeps its original
// position in the teardown order. On a controller that is no longer
// active, fn runs immediately.
func (c *Controller) Register(id string, fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		c.call(id, fn)
		return
	}
	old, exists := c.disposers[id]
	c.disposers[id] = fn
	if !exists {
		c.order = append(c.order, id)
	}
	c.mu.Unlock()

	if exists {
		c.logger.Warn("replacing disposer; running the previous one", "id", id)
		c.call(id, old)
	}
}

// Merge chains fn after the existing disposer of id, so both run on
// disposal, old first. Without an existing disposer it behaves like
// Register.
func (c *Controller) Merge(id string, fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	old, exists := c.disposers[id]
	if exists && c.state == Active {
		c.disposers[id] = func() { old(); fn() }
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Register(id, fn)
}

// Forget removes the disposer of id without running it and returns it.
func (c *Controller) Forget(id string) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.disposers[id]
	if !ok {
		return nil
	}
	delete(c.disposers, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	return fn
}

// Run runs and removes the disposer of id. It reports whether one existed.
func (c *Controller) Run(id string) bool {
	fn := c.Forget(id)
	if fn == nil {
		return false
	}
	c.call(id, fn)
	return true
}

// Track registers a cancel function for an internal observer. Trackers run
// after every disposer during Dispose.
func (c *Controller) Track(cancel func()) {
	if cancel == nil {
		return
	}
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		cancel()
		return
	}
	c.trackers = append(c.trackers, cancel)
	c.mu.Unlock()
}

// Dispose tears the instance down: every disposer in registration order,
// then every tracker, then each of finalize in order. Only the first call
// does anything; it returns the number of disposers run and true. Panics
// in disposers are recovered and logged so one failing disposer never
// stops the rest.
func (c *Controller) Dispose(finalize ...func()) (int, bool) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return 0, false
	}
	c.state = Disposing
	order := c.order
	disposers := c.disposers
	trackers := c.trackers
	c.order, c.disposers, c.trackers = nil, make(map[string]func()), nil
	c.mu.Unlock()

	for _, id := range order {
		c.call(id, disposers[id])
	}
	for _, cancel := range trackers {
		c.call("observer", cancel)
	}
	for _, fn := range finalize {
		if fn != nil {
			c.call("finalize", fn)
		}
	}

	c.mu.Lock()
	c.state = Disposed
	c.mu.Unlock()
	return len(order), true
}

func (c *Controller) call(id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("disposer panicked", "id", id, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
