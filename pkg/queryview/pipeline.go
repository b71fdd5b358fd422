package queryview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/frostime/sy-query-view/pkg/collection"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/record"
	"github.com/frostime/sy-query-view/pkg/view"
)

// Pipeline is a declarative script: each step optionally runs a query,
// transforms the result and renders it with a view.
//
//	counter = "renders"
//
//	[[step]]
//	query = "SELECT * FROM blocks WHERE type = 'd' ORDER BY updated DESC"
//	ops = [
//	    { op = "unique" },
//	    { op = "slice", start = 0, end = 10 },
//	]
//	view = "table"
//	columns = ["id", "content"]
type Pipeline struct {
	Title string `toml:"title" json:"title,omitempty"`

	// Counter names a state key incremented on every run and reported as
	// a text line, so a rendered pipeline shows its persisted state.
	Counter string `toml:"counter" json:"counter,omitempty"`

	Steps []Step `toml:"step" json:"steps"`
}

// Step is one query, transform and render unit.
type Step struct {
	Query string `toml:"query" json:"query,omitempty"`
	Ops   []Op   `toml:"ops" json:"ops,omitempty"`

	// View is any registered view name. Defaults to table with a query
	// and text without one.
	View string `toml:"view" json:"view,omitempty"`

	// Text is the body of text, markdown and mermaid views.
	Text string `toml:"text" json:"text,omitempty"`

	// GroupBy renders one heading and one view per group, in first-seen
	// key order.
	GroupBy string `toml:"groupby" json:"groupby,omitempty"`

	// View options.
	Columns   []string `toml:"columns" json:"columns,omitempty"`
	LinkIDs   bool     `toml:"link_ids" json:"link_ids,omitempty"`
	Ordered   bool     `toml:"ordered" json:"ordered,omitempty"`
	Field     string   `toml:"field" json:"field,omitempty"`
	Direction string   `toml:"direction" json:"direction,omitempty"`
}

// Op is one collection transformation.
type Op struct {
	Op     string   `toml:"op" json:"op"`
	Fields []string `toml:"fields" json:"fields,omitempty"`
	Field  string   `toml:"field" json:"field,omitempty"`
	Order  string   `toml:"order" json:"order,omitempty"`
	Value  any      `toml:"value" json:"value,omitempty"`
	Start  int      `toml:"start" json:"start,omitempty"`
	End    *int     `toml:"end" json:"end,omitempty"`
}

var ops = []string{"pick", "omit", "sorton", "filter", "slice", "unique", "addcol"}

// LoadPipeline reads a pipeline from a .toml or .json file.
func LoadPipeline(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "open pipeline %s", path)
	}
	defer f.Close()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodePipeline(f, format)
}

// DecodePipeline parses a pipeline in the given format, "toml" or "json".
func DecodePipeline(r io.Reader, format string) (*Pipeline, error) {
	var p Pipeline
	switch format {
	case "toml":
		if _, err := toml.NewDecoder(r).Decode(&p); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode pipeline")
		}
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode pipeline")
		}
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "pipeline format %q", format)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every step and op.
func (p *Pipeline) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "pipeline has no steps")
	}
	for i, s := range p.Steps {
		if s.Query == "" && s.Text == "" {
			return errors.New(errors.ErrCodeInvalidInput, "step %d: needs a query or text", i+1)
		}
		if s.GroupBy != "" && s.Query == "" {
			return errors.New(errors.ErrCodeInvalidInput, "step %d: groupby needs a query", i+1)
		}
		for j, op := range s.Ops {
			if err := op.validate(); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "step %d op %d", i+1, j+1)
			}
		}
	}
	return nil
}

func (o Op) validate() error {
	name := strings.ToLower(o.Op)
	if !slices.Contains(ops, name) {
		return fmt.Errorf("unknown op %q", o.Op)
	}
	switch name {
	case "pick", "omit":
		if len(o.Fields) == 0 {
			return fmt.Errorf("%s needs fields", name)
		}
	case "sorton", "filter", "addcol":
		if o.Field == "" {
			return fmt.Errorf("%s needs a field", name)
		}
	}
	return nil
}

// apply runs the op on c.
func (o Op) apply(c *collection.Collection) (*collection.Collection, error) {
	switch strings.ToLower(o.Op) {
	case "pick":
		return c.Pick(o.Fields...), nil
	case "omit":
		return c.Omit(o.Fields...), nil
	case "sorton":
		return c.SortOn(o.Field, o.Order), nil
	case "filter":
		want := record.KeyOf(o.Value)
		return c.Filter(func(r record.Record, _ int) bool {
			v, _ := r.Get(o.Field)
			return record.KeyOf(v) == want
		}), nil
	case "slice":
		end := c.Len()
		if o.End != nil {
			end = *o.End
		}
		return c.Slice(o.Start, end), nil
	case "unique":
		if o.Field != "" {
			return c.UniqueBy(o.Field), nil
		}
		return c.Unique(), nil
	case "addcol":
		return c.AddCol(collection.Columns{o.Field: o.Value})
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown op %q", o.Op)
}

// Script compiles the pipeline into a script.
func (p *Pipeline) Script() Script {
	return func(ctx context.Context, qv *Instance) error {
		if p.Title != "" {
			if _, err := qv.AddMarkdown(ctx, "## "+p.Title, nil); err != nil {
				return err
			}
		}
		if p.Counter != "" {
			h := UseState(qv, p.Counter, 0)
			h.Update(func(n int) int { return n + 1 })
			if _, err := qv.AddText(ctx, fmt.Sprintf("%s: %d", p.Counter, h.Get())); err != nil {
				return err
			}
		}
		for i, s := range p.Steps {
			if err := s.run(ctx, qv); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		return nil
	}
}

func (s Step) run(ctx context.Context, qv *Instance) error {
	if s.Query == "" {
		_, err := qv.Add(ctx, s.viewName(), s.Text)
		return err
	}
	c, err := qv.Query(ctx, s.Query)
	if err != nil {
		return err
	}
	for _, op := range s.Ops {
		if c, err = op.apply(c); err != nil {
			return err
		}
	}
	if s.GroupBy == "" {
		_, err := qv.Add(ctx, s.viewName(), s.args(qv.Views(), c)...)
		return err
	}

	var firstErr error
	c.GroupBy(s.GroupBy, func(key string, g *collection.Collection) {
		if firstErr != nil {
			return
		}
		if _, err := qv.AddText(ctx, key); err != nil {
			firstErr = err
			return
		}
		if _, err := qv.Add(ctx, s.viewName(), s.args(qv.Views(), g)...); err != nil {
			firstErr = err
		}
	})
	return firstErr
}

func (s Step) viewName() string {
	switch {
	case s.View != "":
		return s.View
	case s.Query == "":
		return view.CapText.String()
	}
	return view.CapTable.String()
}

// args builds the view arguments for a query result. Built-in views get
// their typed options; custom views get the collection alone.
func (s Step) args(r *view.Registry, c *collection.Collection) []any {
	capability, builtin := r.Capability(s.viewName())
	if !builtin {
		return []any{c}
	}
	switch capability {
	case view.CapTable:
		return []any{c, view.TableOptions{Columns: s.Columns, LinkIDs: s.LinkIDs}}
	case view.CapList:
		return []any{c, view.ListOptions{Ordered: s.Ordered, Field: s.Field}}
	case view.CapGraph:
		return []any{c, view.GraphOptions{Label: s.Field, Direction: s.Direction}}
	case view.CapText, view.CapMarkdown, view.CapMermaid:
		if s.Text != "" {
			return []any{s.Text}
		}
		field := s.Field
		if field == "" {
			field = record.FieldContent
		}
		var lines []string
		for _, v := range c.Pick(field).Values() {
			lines = append(lines, record.KeyOf(v))
		}
		return []any{strings.Join(lines, "\n")}
	}
	return []any{c}
}
