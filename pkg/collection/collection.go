// Package collection implements the chainable wrapper around query results.
//
// A [Collection] is an ordered sequence of [record.Record] values. Every
// transformation returns a new Collection and leaves the receiver untouched;
// records themselves are copied on write, so collections share them safely.
//
// # Scalar collections
//
// [Collection.Pick] with exactly one field returns a scalar collection: its
// [Collection.Values] are the bare field values rather than single-field
// records. All other operations keep working on a scalar collection; they see
// each element as the single-field record it was projected from.
//
// # Usage
//
//	docs := collection.Wrap(rows).
//	    Filter(func(r record.Record, _ int) bool { return r.Type() == "d" }).
//	    SortOn("updated", collection.Desc).
//	    Slice(0, 10)
//
//	titles := docs.Pick("content").Values()
package collection

import (
	"slices"

	"github.com/frostime/sy-query-view/pkg/record"
)

// Sort orders accepted by [Collection.SortOn].
const (
	Asc  = "asc"
	Desc = "desc"
)

// Collection is an immutable, ordered sequence of records.
type Collection struct {
	rows []record.Record

	// scalar names the single picked field of a scalar collection.
	scalar string
}

// New creates a collection over a copy of rows.
func New(rows ...record.Record) *Collection {
	return &Collection{rows: slices.Clone(rows)}
}

// Empty returns a collection with no records.
func Empty() *Collection { return &Collection{} }

// FromMaps creates a collection from flat field mappings.
func FromMaps(rows []map[string]any) *Collection {
	out := make([]record.Record, len(rows))
	for i, m := range rows {
		out[i] = record.New(m)
	}
	return &Collection{rows: out}
}

// Wrap turns v into a collection. Wrapping is idempotent: a *Collection is
// returned unchanged. nil and unsupported values produce an empty collection.
func Wrap(v any) *Collection {
	switch x := v.(type) {
	case *Collection:
		if x == nil {
			return Empty()
		}
		return x
	case Collection:
		return &x
	case []record.Record:
		return New(x...)
	case record.Record:
		return New(x)
	case []map[string]any:
		return FromMaps(x)
	case map[string]any:
		return FromMaps([]map[string]any{x})
	case []any:
		rows := make([]record.Record, 0, len(x))
		for _, item := range x {
			switch it := item.(type) {
			case record.Record:
				rows = append(rows, it)
			case map[string]any:
				rows = append(rows, record.New(it))
			}
		}
		return &Collection{rows: rows}
	}
	return Empty()
}

func (c *Collection) derive(rows []record.Record) *Collection {
	return &Collection{rows: rows, scalar: c.scalar}
}

// Len returns the number of records.
func (c *Collection) Len() int { return len(c.rows) }

// At returns the record at index i. Negative indices count from the end.
// Out-of-range indices return an empty record and false.
func (c *Collection) At(i int) (record.Record, bool) {
	if i < 0 {
		i += len(c.rows)
	}
	if i < 0 || i >= len(c.rows) {
		return record.Record{}, false
	}
	return c.rows[i], true
}

// Records returns a copy of the underlying records.
func (c *Collection) Records() []record.Record { return slices.Clone(c.rows) }

// IsScalar reports whether c is a single-field projection.
func (c *Collection) IsScalar() bool { return c.scalar != "" }

// ScalarField returns the projected field of a scalar collection, or "".
func (c *Collection) ScalarField() string { return c.scalar }

// Values returns the elements as plain values: bare field values for a
// scalar collection, flat maps otherwise.
func (c *Collection) Values() []any {
	out := make([]any, len(c.rows))
	for i, r := range c.rows {
		if c.scalar != "" {
			out[i], _ = r.Get(c.scalar)
			continue
		}
		out[i] = r.Map()
	}
	return out
}

// Each calls fn for every record in order.
func (c *Collection) Each(fn func(r record.Record, i int)) {
	for i, r := range c.rows {
		fn(r, i)
	}
}

// Views wraps every record in a [record.View].
func (c *Collection) Views(lookup record.Lookup) []*record.View {
	out := make([]*record.View, len(c.rows))
	for i, r := range c.rows {
		out[i] = record.NewView(r, lookup)
	}
	return out
}

// Equal reports structural equality: same length, scalar-ness and
// field-equal records in the same order.
func (c *Collection) Equal(o *Collection) bool {
	if c == o {
		return true
	}
	if o == nil || c.scalar != o.scalar || len(c.rows) != len(o.rows) {
		return false
	}
	for i := range c.rows {
		if !c.rows[i].Equal(o.rows[i]) {
			return false
		}
	}
	return true
}

// Pick projects each record onto fields, preserving order. With exactly one
// field the result is a scalar collection.
func (c *Collection) Pick(fields ...string) *Collection {
	rows := make([]record.Record, len(c.rows))
	for i, r := range c.rows {
		rows[i] = r.Only(fields...)
	}
	out := &Collection{rows: rows}
	if len(fields) == 1 {
		out.scalar = fields[0]
	}
	return out
}

// Omit removes fields from each record, keeping all others.
func (c *Collection) Omit(fields ...string) *Collection {
	rows := make([]record.Record, len(c.rows))
	for i, r := range c.rows {
		rows[i] = r.Without(fields...)
	}
	out := &Collection{rows: rows}
	if c.scalar != "" && !slices.Contains(fields, c.scalar) {
		out.scalar = c.scalar
	}
	return out
}

// SortOn stable-sorts by field. order is [Asc] (default) or [Desc]; records
// with equal keys keep their relative order either way.
func (c *Collection) SortOn(field, order string) *Collection {
	rows := slices.Clone(c.rows)
	sign := 1
	if order == Desc {
		sign = -1
	}
	slices.SortStableFunc(rows, func(a, b record.Record) int {
		av, _ := a.Get(field)
		bv, _ := b.Get(field)
		return sign * record.Compare(av, bv)
	})
	return c.derive(rows)
}

// Filter keeps the records for which keep returns true.
func (c *Collection) Filter(keep func(r record.Record, i int) bool) *Collection {
	var rows []record.Record
	for i, r := range c.rows {
		if keep(r, i) {
			rows = append(rows, r)
		}
	}
	return c.derive(rows)
}

// Slice returns records in [start, end). Negative indices count from the
// end; out-of-range bounds are clamped. end <= start yields an empty
// collection.
func (c *Collection) Slice(start, end int) *Collection {
	n := len(c.rows)
	start, end = clampIndex(start, n), clampIndex(end, n)
	if end <= start {
		return c.derive(nil)
	}
	return c.derive(slices.Clone(c.rows[start:end]))
}

// Head returns at most the first n records.
func (c *Collection) Head(n int) *Collection { return c.Slice(0, max(n, 0)) }

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return min(max(i, 0), n)
}

// Unique removes duplicates keeping the first occurrence. Records are keyed
// by their id field when present, otherwise by their full content.
func (c *Collection) Unique() *Collection {
	return c.UniqueFunc(defaultKey)
}

// UniqueBy removes records whose field value was already seen.
func (c *Collection) UniqueBy(field string) *Collection {
	return c.UniqueFunc(func(r record.Record) any {
		v, _ := r.Get(field)
		return v
	})
}

// UniqueFunc removes records whose computed key was already seen. Keys are
// compared after string coercion.
func (c *Collection) UniqueFunc(key func(r record.Record) any) *Collection {
	seen := make(map[string]struct{}, len(c.rows))
	var rows []record.Record
	for _, r := range c.rows {
		k := record.KeyOf(key(r))
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, r)
	}
	return c.derive(rows)
}

func defaultKey(r record.Record) any {
	if id, ok := r.Get(record.FieldID); ok {
		return id
	}
	return r
}

// AddRow concatenates others after c, preserving order.
func (c *Collection) AddRow(others ...*Collection) *Collection {
	rows := slices.Clone(c.rows)
	for _, o := range others {
		if o != nil {
			rows = append(rows, o.rows...)
		}
	}
	return c.derive(rows)
}

// AsMap indexes records by a key field ("id" when key is empty). When keys
// collide the later record wins. Records without the key are skipped.
func (c *Collection) AsMap(key string) map[string]record.Record {
	if key == "" {
		key = record.FieldID
	}
	out := make(map[string]record.Record, len(c.rows))
	for _, r := range c.rows {
		v, ok := r.Get(key)
		if !ok {
			continue
		}
		out[record.KeyOf(v)] = r
	}
	return out
}
