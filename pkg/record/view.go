package record

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the host's compact timestamp layout for created/updated.
const TimeLayout = "20060102150405"

// Lookup gives views read access to host metadata that is not part of the
// row itself.
type Lookup interface {
	// NotebookName returns the display name of a notebook, or "" if unknown.
	NotebookName(box string) string
	// Attrs returns the attributes of a block, or nil if unknown.
	Attrs(id string) map[string]string
}

// StaticLookup is a [Lookup] backed by fixed maps.
type StaticLookup struct {
	Notebooks  map[string]string
	Attributes map[string]map[string]string
}

// NotebookName implements [Lookup].
func (l StaticLookup) NotebookName(box string) string { return l.Notebooks[box] }

// Attrs implements [Lookup].
func (l StaticLookup) Attrs(id string) map[string]string { return l.Attributes[id] }

// View exposes derived properties of one record. It owns no mutable state;
// every property is computed on demand from the record and the lookup.
type View struct {
	rec    Record
	lookup Lookup
}

// NewView wraps r. A nil lookup is allowed; lookup-backed properties then
// fall back to what the record itself carries.
func NewView(r Record, lookup Lookup) *View {
	return &View{rec: r, lookup: lookup}
}

// Record returns the underlying record.
func (v *View) Record() Record { return v.rec }

// Field returns a raw field of the underlying record.
func (v *View) Field(name string) (any, bool) { return v.rec.Get(name) }

// Attr returns a block attribute. The record's own inline attribute list is
// consulted first, then the lookup. Both "status" and "custom-status" match
// a request for "status".
func (v *View) Attr(name string) string {
	if val, ok := lookupAttr(ParseIAL(v.rec.IAL()), name); ok {
		return val
	}
	if v.lookup != nil {
		if val, ok := lookupAttr(v.lookup.Attrs(v.rec.ID()), name); ok {
			return val
		}
	}
	return ""
}

// ParsedIAL returns the record's inline attribute list as a map.
func (v *View) ParsedIAL() map[string]string { return ParseIAL(v.rec.IAL()) }

// Notebook returns the notebook display name, falling back to the box id.
func (v *View) Notebook() string {
	box := v.rec.Box()
	if v.lookup != nil {
		if name := v.lookup.NotebookName(box); name != "" {
			return name
		}
	}
	return box
}

// CreatedAt parses the creation timestamp. Zero if absent or malformed.
func (v *View) CreatedAt() time.Time { return parseStamp(v.rec.Created()) }

// UpdatedAt parses the update timestamp. Zero if absent or malformed.
func (v *View) UpdatedAt() time.Time { return parseStamp(v.rec.Updated()) }

// CreatedDate returns the creation date as 2006-01-02.
func (v *View) CreatedDate() string { return formatStamp(v.CreatedAt(), time.DateOnly) }

// CreatedTime returns the creation time of day as 15:04:05.
func (v *View) CreatedTime() string { return formatStamp(v.CreatedAt(), time.TimeOnly) }

// UpdatedDate returns the update date as 2006-01-02.
func (v *View) UpdatedDate() string { return formatStamp(v.UpdatedAt(), time.DateOnly) }

// UpdatedTime returns the update time of day as 15:04:05.
func (v *View) UpdatedTime() string { return formatStamp(v.UpdatedAt(), time.TimeOnly) }

// Link returns the host URL that opens the block.
func (v *View) Link() string {
	if v.rec.ID() == "" {
		return ""
	}
	return BlockLink(v.rec.ID())
}

// BlockLink returns the host URL that opens the block with the given id.
func BlockLink(id string) string { return "siyuan://blocks/" + id }

// MarkdownLink returns a markdown link to the block labelled by its content.
func (v *View) MarkdownLink() string {
	if v.rec.ID() == "" {
		return ""
	}
	return fmt.Sprintf("[%s](%s)", escapeAnchor(v.anchor()), v.Link())
}

// RefText returns a block reference, ((id "anchor")), labelled by content.
func (v *View) RefText() string {
	if v.rec.ID() == "" {
		return ""
	}
	return fmt.Sprintf("((%s %q))", v.rec.ID(), v.anchor())
}

func (v *View) anchor() string {
	a := v.rec.Content()
	if a == "" {
		a = v.rec.ID()
	}
	a = strings.ReplaceAll(a, "\n", " ")
	if r := []rune(a); len(r) > 64 {
		a = string(r[:64]) + "…"
	}
	return a
}

func escapeAnchor(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func parseStamp(s string) time.Time {
	if len(s) < len(TimeLayout) {
		return time.Time{}
	}
	t, err := time.ParseInLocation(TimeLayout, s[:len(TimeLayout)], time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatStamp(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
