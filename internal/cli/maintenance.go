package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecountCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recount <id>",
		Short: "Rebuild variant counters from the event log",
		Long: `Recompute impressions, clicks and conversions for every variant of an
experiment from its recorded events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withStore(func(e *env) error {
				ctx := cmd.Context()
				if err := e.store.RecountCounters(ctx, id); err != nil {
					return fmt.Errorf("failed to recount experiment %d: %w", id, err)
				}
				exp, err := e.store.GetExperiment(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recounted experiment %d '%s'\n", exp.ID, exp.Name)
				for _, v := range exp.Variants {
					fmt.Fprintf(out, "  %s: %d views, %d clicks, %d conversions\n", v.Key, v.Impressions, v.Clicks, v.Conversions)
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an experiment and its events",
		Long:  `Delete an experiment that is not running, together with its variants and events.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if !yes {
				ok, err := confirm(cmd, fmt.Sprintf("Delete experiment %d and all its events", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return opts.withStore(func(e *env) error {
				if err := e.store.DeleteExperiment(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to delete experiment %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
