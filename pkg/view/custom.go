package view

import (
	"maps"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/errors"
)

// Context is what a custom view sees of the instance it is loaded into.
type Context interface {
	// ID identifies the embed point.
	ID() string

	// DocID identifies the document containing the embed point.
	DocID() string

	Logger() *log.Logger

	// OnDispose registers fn to run when the instance is disposed.
	OnDispose(fn func())
}

// Definition describes a custom view. Use is called once per instance and
// returns the per-instance renderer.
type Definition struct {
	Alias []string
	Use   func(ctx Context) (*Custom, error)
}

// Custom is the per-instance half of a custom view.
type Custom struct {
	Render  Constructor
	Dispose func()
}

// LoadCustom registers each definition into r. Invalid entries are logged
// and skipped; the returned errors list them in name order. Names are
// loaded in sorted order so replacement between entries is deterministic.
func LoadCustom(r *Registry, ctx Context, defs map[string]Definition) (loaded []string, errs []error) {
	for _, name := range slices.Sorted(maps.Keys(defs)) {
		if err := loadOne(r, ctx, name, defs[name]); err != nil {
			r.logger.Warn("custom view skipped", "name", name, "err", err)
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, name)
	}
	return loaded, errs
}

func loadOne(r *Registry, ctx Context, name string, def Definition) error {
	if err := errors.ValidateViewName(name); err != nil {
		return err
	}
	if def.Use == nil {
		return errors.New(errors.ErrCodeInvalidRegistration, "custom view %q has no use function", name)
	}
	custom, err := callUse(ctx, name, def.Use)
	if err != nil {
		return err
	}
	if custom == nil || custom.Render == nil {
		return errors.New(errors.ErrCodeInvalidRegistration, "custom view %q has no render function", name)
	}
	if err := r.Register(name, custom.Render, def.Alias...); err != nil {
		if custom.Dispose != nil {
			custom.Dispose()
		}
		return err
	}
	if custom.Dispose != nil && ctx != nil {
		ctx.OnDispose(custom.Dispose)
	}
	return nil
}

func callUse(ctx Context, name string, use func(Context) (*Custom, error)) (c *Custom, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c, err = nil, errors.New(errors.ErrCodeInvalidRegistration, "custom view %q panicked in use: %v", name, rec)
		}
	}()
	c, err = use(ctx)
	if err != nil && errors.GetCode(err) == "" {
		err = errors.Wrap(errors.ErrCodeInvalidRegistration, err, "custom view %q", name)
	}
	return c, err
}
