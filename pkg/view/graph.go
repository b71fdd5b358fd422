package view

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/record"
	"github.com/frostime/sy-query-view/pkg/surface"
)

// GraphOptions configures [Graph].
type GraphOptions struct {
	// Label is the record field used as node label. Defaults to content.
	Label string

	// Parent is the record field linking a node to its parent. Defaults to
	// parent_id. Parents outside the node set are ignored.
	Parent string

	// Edges are drawn in addition to the parent links.
	Edges []Edge

	// Direction is the graphviz rankdir: TB (default), LR, BT or RL.
	Direction string
}

// Edge connects two node ids.
type Edge struct {
	From, To string
}

func (o GraphOptions) withDefaults() GraphOptions {
	if o.Label == "" {
		o.Label = record.FieldContent
	}
	if o.Parent == "" {
		o.Parent = record.FieldParentID
	}
	switch strings.ToUpper(o.Direction) {
	case "LR", "BT", "RL":
		o.Direction = strings.ToUpper(o.Direction)
	default:
		o.Direction = "TB"
	}
	return o
}

// ToDOT converts records into a Graphviz DOT digraph. Nodes are keyed by id;
// records without an id are skipped.
func ToDOT(data any, opts GraphOptions) (string, error) {
	c, ok := asCollection(data)
	if !ok {
		return "", argError("graph", 0, "records", data)
	}
	opts = opts.withDefaults()

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	fmt.Fprintf(&buf, "  rankdir=%s;\n", opts.Direction)
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	nodes := make(map[string]bool)
	var edges []Edge
	c.Each(func(r record.Record, _ int) {
		id := r.ID()
		if id == "" || nodes[id] {
			return
		}
		nodes[id] = true
		label := r.Text(opts.Label)
		if label == "" {
			label = id
		}
		fmt.Fprintf(&buf, "  %q [label=%q, URL=%q];\n", id, nodeLabel(label), record.BlockLink(id))
	})
	c.Each(func(r record.Record, _ int) {
		if p := r.Text(opts.Parent); p != "" && nodes[p] && r.ID() != "" {
			edges = append(edges, Edge{From: p, To: r.ID()})
		}
	})
	for _, e := range opts.Edges {
		if nodes[e.From] && nodes[e.To] {
			edges = append(edges, e)
		}
	}

	buf.WriteString("\n")
	for _, e := range edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}
	buf.WriteString("}\n")
	return buf.String(), nil
}

func nodeLabel(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 48 {
		s = string(r[:48]) + "…"
	}
	return s
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
	xmlHeadRe = regexp.MustCompile(`(?s)^.*?(<svg)`)
)

// normalizeViewBox rewrites the root element to a scalable viewBox and drops
// the XML prolog so the SVG can be inlined.
func normalizeViewBox(svg []byte) []byte {
	svg = xmlHeadRe.ReplaceAll(svg, []byte("$1"))
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" style="max-width: 100%%">`, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// Graph renders records as a node-link diagram.
func Graph(ctx context.Context, data any, opts GraphOptions) (*surface.Fragment, error) {
	dot, err := ToDOT(data, opts)
	if err != nil {
		return nil, err
	}
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderFailure, err, "graph")
	}
	f := surface.NewFragment("graph", template.HTML(`<div class="query-view__graph">`+string(svg)+`</div>`))
	return f, nil
}

func graphView(ctx context.Context, args ...any) (*surface.Fragment, error) {
	if len(args) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "graph: missing data argument")
	}
	var opts GraphOptions
	if len(args) > 1 {
		switch o := args[1].(type) {
		case GraphOptions:
			opts = o
		case *GraphOptions:
			opts = *o
		default:
			return nil, argError("graph", 1, "GraphOptions", o)
		}
	}
	return Graph(ctx, args[0], opts)
}
