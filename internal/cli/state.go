package cli

import (
	"context"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/frostime/sy-query-view/pkg/state"
)

// stateCommand creates the state inspection command.
func (c *CLI) stateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear the persisted state of an embed point",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <embed-id>",
		Short: "Print the persisted state of an embed point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStateShow(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <embed-id>",
		Short: "Delete the persisted state of an embed point from both tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStateClear(cmd.Context(), args[0])
		},
	})

	return cmd
}

func (c *CLI) runStateShow(ctx context.Context, id string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	b, err := c.openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	fields, bad, err := state.ReadDurable(ctx, b.Durable, id)
	if err != nil {
		return err
	}
	_, cached, err := b.Cache.Get(ctx, b.Keyer.StateKey(id))
	if err != nil {
		c.Logger.Warn("fast tier unavailable", "err", err)
	}

	printTitle("%s", id)
	if len(fields) == 0 {
		printInfo("No durable state (%s)", cfg.State.Backend)
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		printKeyValue(k, string(fields[k]))
	}
	for _, e := range bad {
		printWarning("%v", e)
	}
	if cached {
		printDetail("fast tier (%s): cached", cfg.Cache.Backend)
	} else {
		printDetail("fast tier (%s): empty", cfg.Cache.Backend)
	}
	return nil
}

func (c *CLI) runStateClear(ctx context.Context, id string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	b, err := c.openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := state.ClearDurable(ctx, b.Durable, id)
	if err != nil {
		return err
	}
	if err := b.Cache.Delete(ctx, b.Keyer.StateKey(id)); err != nil {
		c.Logger.Warn("fast tier delete failed", "err", err)
	}
	printSuccess("Cleared %d state fields of %s", n, id)
	return nil
}
