package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/frostime/sy-query-view/pkg/queryview"
	"github.com/frostime/sy-query-view/pkg/view"
)

// viewsCommand lists the views a script can call: the built-ins and the
// custom views of the configured module.
func (c *CLI) viewsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "List registered views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			var custom map[string]view.Definition
			if cfg.Views.Module != "" {
				if custom, err = view.LoadTemplates(cfg.Views.Module); err != nil {
					return err
				}
			}

			inst, err := queryview.New(ctx, queryview.Options{ID: "views", Custom: custom, Logger: c.Logger})
			if err != nil {
				return err
			}
			defer inst.Dispose(ctx)

			r := inst.Views()
			printTitle("Views")
			for _, name := range r.Names() {
				kind := "custom"
				if _, ok := r.Capability(name); ok {
					kind = "builtin"
				}
				value := kind
				if aliases := r.Aliases(name); len(aliases) > 0 {
					value += "  " + strings.Join(aliases, ", ")
				}
				printKeyValue(name, value)
			}
			if cfg.Views.Module != "" {
				printDetail("Module: %s", cfg.Views.Module)
			}
			return nil
		},
	}
}
