package cli

import (
	"bytes"
	"context"
	"html/template"
	"path/filepath"
	"slices"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/frostime/sy-query-view/pkg/queryview"
	"github.com/frostime/sy-query-view/pkg/surface"
)

// renderOpts holds the flags of the render command.
type renderOpts struct {
	output  string // output file, "-" for stdout
	docID   string // document the embed point belongs to
	embedID string // embed point identity; defaults to the pipeline file name
	page    bool   // wrap the surface in a standalone HTML page
	noCache bool   // skip the fast state tier
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOpts{output: "-", docID: "cli"}

	cmd := &cobra.Command{
		Use:   "render <pipeline.toml|pipeline.json>",
		Short: "Run a pipeline and write the rendered HTML",
		Long: `Run a pipeline file against the configured query backend and write the
rendered surface as HTML.

State kept by the pipeline (its counter, for instance) is restored from the
configured tiers before the run and flushed to the durable tier after it, so
repeated renders of the same embed point continue where the last one ended.`,
		Example: `  queryview render docs.toml -o docs.html --page
  queryview render weekly.json --embed 20240101120000-abc1234`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output file (- for stdout)")
	cmd.Flags().StringVar(&opts.docID, "doc", opts.docID, "document id")
	cmd.Flags().StringVar(&opts.embedID, "embed", "", "embed point id (default: pipeline file name)")
	cmd.Flags().BoolVar(&opts.page, "page", false, "write a standalone HTML page")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the fast state tier")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, path string, opts renderOpts) error {
	p, err := queryview.LoadPipeline(path)
	if err != nil {
		return err
	}
	if opts.embedID == "" {
		opts.embedID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if opts.noCache {
		cfg.Cache.Backend = "none"
	}
	b, err := c.openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	prog := newProgress(c.Logger)
	m := queryview.NewManager(b.Options(c.Logger))
	inst, runErr := m.Render(ctx, opts.docID, opts.embedID, nil, p.Script())
	if inst == nil {
		return runErr
	}
	if runErr != nil {
		c.Logger.Warn("pipeline failed", "err", runErr)
	}

	var buf bytes.Buffer
	if err := writeSurface(&buf, inst, opts.page, p.Title); err != nil {
		return err
	}
	frags := inst.Root().Fragments()
	tier := inst.State().Source()

	// Dispose flushes state before the backends close.
	if err := m.Close(ctx); err != nil {
		c.Logger.Warn("state flush failed", "err", err)
	}

	if opts.output == "-" {
		_, err := buf.WriteTo(stdoutHTML)
		return err
	}
	if err := atomic.WriteFile(opts.output, &buf); err != nil {
		return err
	}
	prog.done("Rendered " + opts.embedID)

	var kinds []string
	for _, f := range frags {
		if !slices.Contains(kinds, f.Kind) {
			kinds = append(kinds, f.Kind)
		}
	}
	printSuccess("Rendered %s", opts.embedID)
	printRenderStats(len(frags), kinds, tier)
	printFile(opts.output)
	if runErr != nil {
		printWarning("Pipeline stopped early: %v", runErr)
	}
	printNextStep("Inspect its state", "queryview state show "+opts.embedID)
	return nil
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Title}}{{.Title}}{{else}}queryview{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 960px; }
.query-view__table { border-collapse: collapse; }
.query-view__table td, .query-view__table th { border: 1px solid #ddd; padding: 4px 8px; }
.query-view__error { color: #b00020; }
</style>
</head>
<body>
{{.Body}}
{{- if .Mermaid}}
<script type="module">
import mermaid from "https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.esm.min.mjs";
mermaid.initialize({ startOnLoad: true });
</script>
{{- end}}
</body>
</html>
`))

// writeSurface renders the instance surface, optionally as a full page.
func writeSurface(buf *bytes.Buffer, inst *queryview.Instance, page bool, title string) error {
	if !page {
		return inst.WriteHTML(buf)
	}
	var body bytes.Buffer
	if err := inst.WriteHTML(&body); err != nil {
		return err
	}
	mermaid := slices.ContainsFunc(inst.Root().Fragments(), func(f *surface.Fragment) bool {
		return f.Kind == "mermaid"
	})
	return pageTmpl.Execute(buf, struct {
		Title   string
		Body    template.HTML
		Mermaid bool
	}{title, template.HTML(body.String()), mermaid})
}
