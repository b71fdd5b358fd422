package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostime/sy-query-view/pkg/queryview"
	"github.com/frostime/sy-query-view/pkg/state"
)

// cacheCommand creates the fast-tier cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the fast state tier",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand. Clearing the
// fast tier is what a host sync does: the next restore of every embed
// point reads the durable tier.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached state entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == "memory" || cfg.Cache.Backend == "none" {
				printInfo("The %s cache does not outlive a process; nothing to clear", cfg.Cache.Backend)
				return nil
			}
			b, err := c.openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := state.PurgeFastTier(ctx, b.Cache, b.Keyer); err != nil {
				return fmt.Errorf("clear %s cache: %w", cfg.Cache.Backend, err)
			}
			printSuccess("Cleared the %s cache", cfg.Cache.Backend)
			if cfg.Cache.Backend == "file" {
				printDetail("Directory: %s", cfg.Cache.Dir)
			}
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir := queryview.DefaultCacheDir()
			if cfg.Cache.Backend == "file" {
				dir = cfg.Cache.Dir
			}
			fmt.Fprintln(stdout, dir)
			return nil
		},
	}
}
