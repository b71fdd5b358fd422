// Package record defines the row type produced by query backends and the
// derived per-row view used by renderers.
//
// A [Record] is semi-structured: the columns of a host block row (id,
// parent_id, root_id, content, created, ...) are typed fields, anything else
// lives in an open extension map. Records are value data. Every mutating
// helper ([Record.With], [Record.Without]) returns a copy and leaves the
// receiver untouched, so collections can share records freely.
package record

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Known field names, in the order they are reported by [Record.Fields].
const (
	FieldID       = "id"
	FieldParentID = "parent_id"
	FieldRootID   = "root_id"
	FieldBox      = "box"
	FieldPath     = "path"
	FieldHPath    = "hpath"
	FieldName     = "name"
	FieldAlias    = "alias"
	FieldMemo     = "memo"
	FieldTag      = "tag"
	FieldContent  = "content"
	FieldMarkdown = "markdown"
	FieldType     = "type"
	FieldSubtype  = "subtype"
	FieldIAL      = "ial"
	FieldCreated  = "created"
	FieldUpdated  = "updated"
)

const numKnown = 17

var knownFields = []string{
	FieldID, FieldParentID, FieldRootID, FieldBox, FieldPath, FieldHPath,
	FieldName, FieldAlias, FieldMemo, FieldTag, FieldContent, FieldMarkdown,
	FieldType, FieldSubtype, FieldIAL, FieldCreated, FieldUpdated,
}

// Record is one row of domain data.
//
// Known string columns are held in a fixed array indexed by field, with a
// presence bit per column, so an empty string is a present value. Values
// that are not strings, or names that are not known columns, live in extra.
// A name is never held in both.
type Record struct {
	known   [numKnown]string
	present uint32
	extra   map[string]any
}

func knownIndex(name string) int {
	return slices.Index(knownFields, name)
}

// New creates a record from a flat field mapping.
func New(fields map[string]any) Record {
	var r Record
	for k, v := range fields {
		r.set(k, v)
	}
	return r
}

// FromMap is an alias of [New] kept for symmetry with [Record.Map].
func FromMap(m map[string]any) Record { return New(m) }

func (r *Record) set(name string, v any) {
	if i := knownIndex(name); i >= 0 {
		if s, ok := v.(string); ok {
			r.known[i] = s
			r.present |= 1 << i
			delete(r.extra, name)
			return
		}
		r.known[i] = ""
		r.present &^= 1 << i
	}
	if r.extra == nil {
		r.extra = make(map[string]any)
	}
	r.extra[name] = v
}

func (r Record) clone() Record {
	out := Record{known: r.known, present: r.present}
	if len(r.extra) > 0 {
		out.extra = maps.Clone(r.extra)
	}
	return out
}

// Get returns the value of a field and whether it is present.
// Unknown or absent fields return (nil, false), never an error.
func (r Record) Get(name string) (any, bool) {
	if v, ok := r.extra[name]; ok {
		return v, true
	}
	if i := knownIndex(name); i >= 0 && r.present&(1<<i) != 0 {
		return r.known[i], true
	}
	return nil, false
}

// Text returns a field rendered as a string, or "" when absent.
func (r Record) Text(name string) string {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Has reports whether the field is present.
func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// With returns a copy of r with the given fields set.
func (r Record) With(fields map[string]any) Record {
	out := r.clone()
	for k, v := range fields {
		out.set(k, v)
	}
	return out
}

// Without returns a copy of r with the named fields removed.
func (r Record) Without(names ...string) Record {
	out := r.clone()
	for _, name := range names {
		if i := knownIndex(name); i >= 0 {
			out.known[i] = ""
			out.present &^= 1 << i
		}
		delete(out.extra, name)
	}
	return out
}

// Only returns a copy of r restricted to the named fields.
func (r Record) Only(names ...string) Record {
	var out Record
	for _, name := range names {
		if v, ok := r.Get(name); ok {
			out.set(name, v)
		}
	}
	return out
}

// Fields lists the present field names: known columns first in schema
// order, then extension fields sorted by name.
func (r Record) Fields() []string {
	var out []string
	for _, name := range knownFields {
		if r.Has(name) {
			out = append(out, name)
		}
	}
	var extras []string
	for k := range r.extra {
		if knownIndex(k) < 0 {
			extras = append(extras, k)
		}
	}
	slices.Sort(extras)
	return append(out, extras...)
}

// Len returns the number of present fields.
func (r Record) Len() int { return len(r.Fields()) }

// Map returns the record as a flat mapping. The map is a fresh copy.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(knownFields)+len(r.extra))
	for i, name := range knownFields {
		if r.present&(1<<i) != 0 {
			out[name] = r.known[i]
		}
	}
	for k, v := range r.extra {
		out[k] = v
	}
	return out
}

// Equal reports whether two records hold the same fields and values.
func (r Record) Equal(o Record) bool {
	if r.known != o.known || r.present != o.present || len(r.extra) != len(o.extra) {
		return false
	}
	for k, v := range r.extra {
		ov, ok := o.extra[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as a flat JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes a flat JSON object.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = New(m)
	return nil
}

// ID returns the block identifier.
func (r Record) ID() string { return r.Text(FieldID) }

// ParentID returns the parent block identifier.
func (r Record) ParentID() string { return r.Text(FieldParentID) }

// RootID returns the identifier of the containing document.
func (r Record) RootID() string { return r.Text(FieldRootID) }

// Box returns the notebook identifier.
func (r Record) Box() string { return r.Text(FieldBox) }

// Content returns the plain-text content.
func (r Record) Content() string { return r.Text(FieldContent) }

// Markdown returns the markdown source.
func (r Record) Markdown() string { return r.Text(FieldMarkdown) }

// Type returns the block type tag.
func (r Record) Type() string { return r.Text(FieldType) }

// IAL returns the raw inline attribute list.
func (r Record) IAL() string { return r.Text(FieldIAL) }

// Created returns the creation timestamp in host layout.
func (r Record) Created() string { return r.Text(FieldCreated) }

// Updated returns the update timestamp in host layout.
func (r Record) Updated() string { return r.Text(FieldUpdated) }
