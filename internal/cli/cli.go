// Package cli implements the queryview command-line interface.
//
// Commands:
//   - render: run a pipeline file and write the resulting HTML
//   - serve: expose the engine to a host over HTTP
//   - state: inspect or clear the persisted state of an embed point
//   - cache: manage the fast state tier
//   - views: list the registered views
//
// Every command reads queryview.toml (see --config); --verbose switches
// logging to debug level.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/frostime/sy-query-view/pkg/buildinfo"
	"github.com/frostime/sy-query-view/pkg/queryview"
)

const appName = "queryview"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// Status lines and rendered HTML go to separate writers so that
// "render -o -" output stays clean. Tests redirect both.
var (
	stdout     io.Writer = os.Stdout
	stdoutHTML io.Writer = os.Stdout
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "queryview renders query-driven views for embedded blocks",
		Long:         `queryview runs visualization scripts against a note database and renders tables, lists, graphs and custom views into embed points, keeping per-embed state across re-renders.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default "+queryview.DefaultConfigPath()+")")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.stateCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.viewsCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the config file named by --config, or the default one.
func (c *CLI) loadConfig() (*queryview.Config, error) {
	path := c.configPath
	if path == "" {
		path = queryview.DefaultConfigPath()
	}
	cfg, err := queryview.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("config loaded", "path", path, "query", cfg.Query.Backend, "cache", cfg.Cache.Backend, "state", cfg.State.Backend)
	return cfg, nil
}

// openBackends builds the backends named by cfg.
func (c *CLI) openBackends(ctx context.Context, cfg *queryview.Config) (*queryview.Backends, error) {
	prog := newProgress(c.Logger)
	b, err := queryview.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	prog.debug("Opened " + cfg.Query.Backend + " source")
	return b, nil
}
