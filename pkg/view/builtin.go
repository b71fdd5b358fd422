package view

import (
	"bytes"
	"context"
	"html/template"
	"slices"
	"strings"

	"github.com/frostime/sy-query-view/pkg/collection"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/record"
	"github.com/frostime/sy-query-view/pkg/surface"
)

var tmpl = template.Must(template.New("views").Parse(`
{{- define "table" -}}
<table class="query-view__table">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{if .Href}}<a href="{{.Href}}">{{.Text}}</a>{{else}}{{.Text}}{{end}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
{{- end -}}

{{- define "list" -}}
{{if .Ordered}}<ol class="query-view__list">{{else}}<ul class="query-view__list">{{end}}
{{- range .Items}}
<li>{{.Text}}{{if .Children}}{{template "list" .Children}}{{end}}</li>
{{- end}}
{{if .Ordered}}</ol>{{else}}</ul>{{end}}
{{- end -}}

{{- define "text" -}}
<p class="query-view__text" style="white-space: pre-wrap">{{.}}</p>
{{- end -}}

{{- define "markdown" -}}
<div class="query-view__markdown" data-markdown="true">{{.}}</div>
{{- end -}}

{{- define "mermaid" -}}
<pre class="mermaid">{{.}}</pre>
{{- end -}}

{{- define "embed" -}}
<div class="query-view__embed">
{{- range .}}
<div data-block-id="{{.ID}}"><a href="{{.Href}}">{{.Anchor}}</a></div>
{{- end}}
</div>
{{- end -}}

{{- define "error" -}}
<div class="query-view__error" role="alert">{{.}}</div>
{{- end -}}
`))

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrap(errors.ErrCodeRenderFailure, err, "execute %s template", name)
	}
	return template.HTML(buf.String()), nil
}

// asCollection accepts the record containers a script may pass.
func asCollection(data any) (*collection.Collection, bool) {
	switch data.(type) {
	case nil, *collection.Collection, []record.Record, record.Record, []map[string]any, map[string]any:
		return collection.Wrap(data), true
	}
	return nil, false
}

// =============================================================================
// Table
// =============================================================================

// TableOptions configures [Table].
type TableOptions struct {
	// Columns selects and orders the columns. Empty means every field, in
	// first-seen order.
	Columns []string

	// LinkIDs renders the id column as block links.
	LinkIDs bool
}

type tableCell struct {
	Text string
	Href template.URL
}

// Table renders records, or a matrix of cells, as an HTML table.
func Table(data any, opts TableOptions) (*surface.Fragment, error) {
	cols := opts.Columns
	var rows [][]tableCell

	switch d := data.(type) {
	case [][]string:
		for _, r := range d {
			cells := make([]tableCell, len(r))
			for i, v := range r {
				cells[i] = tableCell{Text: v}
			}
			rows = append(rows, cells)
		}
	case [][]any:
		for _, r := range d {
			cells := make([]tableCell, len(r))
			for i, v := range r {
				cells[i] = tableCell{Text: record.KeyOf(v)}
			}
			rows = append(rows, cells)
		}
	default:
		c, ok := asCollection(data)
		if !ok {
			return nil, argError("table", 0, "records or a matrix", data)
		}
		if len(cols) == 0 {
			cols = columnsOf(c)
		}
		c.Each(func(r record.Record, _ int) {
			cells := make([]tableCell, len(cols))
			for i, col := range cols {
				v, _ := r.Get(col)
				cells[i] = tableCell{Text: record.KeyOf(v)}
				if opts.LinkIDs && col == record.FieldID && cells[i].Text != "" {
					cells[i].Href = template.URL(record.BlockLink(cells[i].Text))
				}
			}
			rows = append(rows, cells)
		})
	}

	html, err := execute("table", struct {
		Columns []string
		Rows    [][]tableCell
	}{cols, rows})
	if err != nil {
		return nil, err
	}
	return surface.NewFragment("table", html), nil
}

func columnsOf(c *collection.Collection) []string {
	if f := c.ScalarField(); f != "" {
		return []string{f}
	}
	var cols []string
	c.Each(func(r record.Record, _ int) {
		for _, f := range r.Fields() {
			if !slices.Contains(cols, f) {
				cols = append(cols, f)
			}
		}
	})
	return cols
}

func tableView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	if len(args) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "table: missing data argument")
	}
	var opts TableOptions
	if len(args) > 1 {
		switch o := args[1].(type) {
		case TableOptions:
			opts = o
		case *TableOptions:
			opts = *o
		case []string:
			opts.Columns = o
		default:
			return nil, argError("table", 1, "TableOptions", o)
		}
	}
	return Table(args[0], opts)
}

// =============================================================================
// List
// =============================================================================

// ListOptions configures [List].
type ListOptions struct {
	Ordered bool

	// Field is the record field shown per item. Defaults to content, then id.
	Field string
}

type listItem struct {
	Text     string
	Children *listData
}

type listData struct {
	Ordered bool
	Items   []listItem
}

// List renders records or plain values as an HTML list. A nested []any
// item becomes a sub-list of the preceding item, or of an empty item when
// it comes first.
func List(data any, opts ListOptions) (*surface.Fragment, error) {
	d, err := buildList(data, opts)
	if err != nil {
		return nil, err
	}
	html, err := execute("list", d)
	if err != nil {
		return nil, err
	}
	return surface.NewFragment("list", html), nil
}

func buildList(data any, opts ListOptions) (*listData, error) {
	out := &listData{Ordered: opts.Ordered}
	switch d := data.(type) {
	case []string:
		for _, s := range d {
			out.Items = append(out.Items, listItem{Text: s})
		}
		return out, nil
	case []any:
		for _, v := range d {
			if nested, ok := v.([]any); ok {
				child, err := buildList(nested, opts)
				if err != nil {
					return nil, err
				}
				if len(out.Items) == 0 {
					out.Items = append(out.Items, listItem{})
				}
				out.Items[len(out.Items)-1].Children = child
				continue
			}
			out.Items = append(out.Items, listItem{Text: itemText(v, opts.Field)})
		}
		return out, nil
	}

	c, ok := asCollection(data)
	if !ok {
		return nil, argError("list", 0, "records or a list of values", data)
	}
	for _, v := range c.Values() {
		out.Items = append(out.Items, listItem{Text: itemText(v, opts.Field)})
	}
	return out, nil
}

func itemText(v any, field string) string {
	var r record.Record
	switch x := v.(type) {
	case record.Record:
		r = x
	case map[string]any:
		r = record.New(x)
	default:
		return record.KeyOf(v)
	}
	for _, f := range []string{field, record.FieldContent, record.FieldID} {
		if f != "" && r.Has(f) {
			return r.Text(f)
		}
	}
	return record.KeyOf(r)
}

func listView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	if len(args) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "list: missing data argument")
	}
	var opts ListOptions
	if len(args) > 1 {
		switch o := args[1].(type) {
		case ListOptions:
			opts = o
		case *ListOptions:
			opts = *o
		default:
			return nil, argError("list", 1, "ListOptions", o)
		}
	}
	return List(args[0], opts)
}

// =============================================================================
// Text, Markdown, Mermaid
// =============================================================================

// Text renders escaped plain text, preserving line breaks.
func Text(s string) (*surface.Fragment, error) {
	html, err := execute("text", s)
	if err != nil {
		return nil, err
	}
	return surface.NewFragment("text", html), nil
}

// MarkdownConverter turns markdown source into trusted HTML.
type MarkdownConverter func(src string) (template.HTML, error)

// Markdown renders markdown. With a nil converter the source is emitted
// escaped, marked for conversion by the host.
func Markdown(src string, convert MarkdownConverter) (*surface.Fragment, error) {
	var body any = src
	if convert != nil {
		html, err := convert(src)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailure, err, "convert markdown")
		}
		body = html
	}
	html, err := execute("markdown", body)
	if err != nil {
		return nil, err
	}
	return surface.NewFragment("markdown", html), nil
}

// Mermaid renders a mermaid diagram definition for client-side rendering.
func Mermaid(code string) (*surface.Fragment, error) {
	html, err := execute("mermaid", strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	return surface.NewFragment("mermaid", html), nil
}

func stringArg(view string, args []any) (string, error) {
	if len(args) == 0 {
		return "", errors.New(errors.ErrCodeInvalidInput, "%s: missing text argument", view)
	}
	switch s := args[0].(type) {
	case string:
		return s, nil
	case []string:
		return strings.Join(s, "\n"), nil
	}
	return "", argError(view, 0, "a string", args[0])
}

func textView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	s, err := stringArg("text", args)
	if err != nil {
		return nil, err
	}
	return Text(s)
}

func markdownView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	s, err := stringArg("markdown", args)
	if err != nil {
		return nil, err
	}
	var convert MarkdownConverter
	if len(args) > 1 {
		c, ok := args[1].(MarkdownConverter)
		if !ok {
			return nil, argError("markdown", 1, "a MarkdownConverter", args[1])
		}
		convert = c
	}
	return Markdown(s, convert)
}

func mermaidView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	s, err := stringArg("mermaid", args)
	if err != nil {
		return nil, err
	}
	return Mermaid(s)
}

// =============================================================================
// Embed
// =============================================================================

type embedItem struct {
	ID     string
	Href   template.URL
	Anchor string
}

// Embed renders references to host blocks, given as ids or records.
func Embed(data any) (*surface.Fragment, error) {
	var items []embedItem
	add := func(r record.Record) {
		if r.ID() == "" {
			return
		}
		v := record.NewView(r, nil)
		items = append(items, embedItem{ID: r.ID(), Href: template.URL(v.Link()), Anchor: v.RefText()})
	}
	switch d := data.(type) {
	case string:
		add(record.New(map[string]any{record.FieldID: d}))
	case []string:
		for _, id := range d {
			add(record.New(map[string]any{record.FieldID: id}))
		}
	default:
		c, ok := asCollection(data)
		if !ok {
			return nil, argError("embed", 0, "block ids or records", data)
		}
		c.Each(func(r record.Record, _ int) { add(r) })
	}
	html, err := execute("embed", items)
	if err != nil {
		return nil, err
	}
	return surface.NewFragment("embed", html), nil
}

func embedView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	if len(args) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "embed: missing block argument")
	}
	if len(args) > 1 {
		ids := make([]string, 0, len(args))
		for i, a := range args {
			s, ok := a.(string)
			if !ok {
				return nil, argError("embed", i, "a block id", a)
			}
			ids = append(ids, s)
		}
		return Embed(ids)
	}
	return Embed(args[0])
}

// =============================================================================
// Error
// =============================================================================

// ErrorFragment renders err inline in place of a failed view.
func ErrorFragment(view string, err error) *surface.Fragment {
	msg := errors.UserMessage(err)
	if view != "" {
		msg = view + ": " + msg
	}
	html, execErr := execute("error", msg)
	if execErr != nil {
		html = template.HTML(template.HTMLEscapeString(msg))
	}
	f := surface.NewFragment("error", html)
	f.SetAttr("error-code", string(errors.GetCode(err)))
	return f
}
