package collection

import (
	"reflect"
	"slices"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/record"
)

// ColumnSpec describes fields to add with [Collection.AddCol]. It is
// implemented by [Columns], [Rows] and [ColumnFunc].
type ColumnSpec interface {
	columns(rows []record.Record) ([]map[string]any, error)
}

// Columns maps a field name to its values. A slice or array value is
// positional and must have one element per record; any other value is
// broadcast to every record.
//
// A value that is itself meant to be a list cannot be broadcast this way;
// use [ColumnFunc] for that.
type Columns map[string]any

// Rows holds one partial record per collection record, merged by position.
type Rows []map[string]any

// ColumnFunc computes the fields to add for one record.
type ColumnFunc func(r record.Record, i int) map[string]any

// AddCol returns a new collection with extra fields merged into each
// record. Positional forms whose length differs from the collection fail
// with an [errors.ErrCodeShapeMismatch] error.
func (c *Collection) AddCol(spec ColumnSpec) (*Collection, error) {
	if spec == nil {
		return c, nil
	}
	patches, err := spec.columns(c.rows)
	if err != nil {
		return nil, err
	}
	rows := make([]record.Record, len(c.rows))
	for i, r := range c.rows {
		rows[i] = r.With(patches[i])
	}
	// New fields break a single-field projection.
	return &Collection{rows: rows}, nil
}

func (cols Columns) columns(rows []record.Record) ([]map[string]any, error) {
	patches := make([]map[string]any, len(rows))
	for i := range patches {
		patches[i] = make(map[string]any, len(cols))
	}
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v := cols[name]
		seq, positional := asSequence(v)
		if !positional {
			for i := range patches {
				patches[i][name] = v
			}
			continue
		}
		if seq.Len() != len(rows) {
			return nil, errors.ShapeMismatch("column "+name, seq.Len(), len(rows))
		}
		for i := range patches {
			patches[i][name] = seq.Index(i).Interface()
		}
	}
	return patches, nil
}

// asSequence reports whether v is a positional value. Byte slices are
// treated as scalars.
func asSequence(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv, false
		}
		return rv, true
	case reflect.Array:
		return rv, true
	}
	return rv, false
}

func (rs Rows) columns(rows []record.Record) ([]map[string]any, error) {
	if len(rs) != len(rows) {
		return nil, errors.ShapeMismatch("rows", len(rs), len(rows))
	}
	return slices.Clone([]map[string]any(rs)), nil
}

func (fn ColumnFunc) columns(rows []record.Record) ([]map[string]any, error) {
	patches := make([]map[string]any, len(rows))
	for i, r := range rows {
		patches[i] = fn(r, i)
	}
	return patches, nil
}
