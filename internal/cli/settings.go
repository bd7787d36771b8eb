package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/store"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the global experiment settings",
	}
	cmd.AddCommand(newConfigGetCmd(opts), newConfigSetCmd(opts))
	return cmd
}

func newConfigGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the global settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(e *env) error {
				cfg, err := e.store.GetConfig(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to read settings: %w", err)
				}
				printSettings(cmd.OutOrStdout(), cfg)
				return nil
			})
		},
	}
}

func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	var (
		active, autoWinner     bool
		split, threshold, days int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change global settings",
		Long: `Change global settings. Only the flags given are changed.

Examples:
  vgoat config set --active
  vgoat config set --split 60 --auto-winner --threshold 500 --days 14`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			changed := false
			for _, name := range []string{"active", "split", "auto-winner", "threshold", "days"} {
				changed = changed || flags.Changed(name)
			}
			if !changed {
				return fmt.Errorf("nothing to change: pass at least one flag")
			}

			return opts.withStore(func(e *env) error {
				ctx := cmd.Context()
				cfg, err := e.store.GetConfig(ctx)
				if err != nil {
					return fmt.Errorf("failed to read settings: %w", err)
				}

				if flags.Changed("active") {
					cfg.Active = active
				}
				if flags.Changed("split") {
					cfg.DefaultSplit = split
				}
				if flags.Changed("auto-winner") {
					cfg.AutoWinnerEnabled = autoWinner
				}
				if flags.Changed("threshold") {
					cfg.AutoWinnerThreshold = threshold
				}
				if flags.Changed("days") {
					cfg.AutoWinnerDays = days
				}

				updated, err := e.store.UpdateConfig(ctx, *cfg)
				if err != nil {
					return fmt.Errorf("failed to update settings: %w", err)
				}
				printSettings(cmd.OutOrStdout(), updated)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&active, "active", false, "serve the running experiment to visitors")
	f.IntVar(&split, "split", 50, "default percentage of visitors shown variant A")
	f.BoolVar(&autoWinner, "auto-winner", false, "enable auto-winner for new experiments")
	f.IntVar(&threshold, "threshold", 1000, "default auto-winner click threshold")
	f.IntVar(&days, "days", 7, "default auto-winner day count")
	return cmd
}

func printSettings(out io.Writer, cfg *store.GlobalConfig) {
	fmt.Fprintf(out, "active:                %t\n", cfg.Active)
	fmt.Fprintf(out, "default split:         %d/%d\n", cfg.DefaultSplit, 100-cfg.DefaultSplit)
	fmt.Fprintf(out, "auto-winner:           %t\n", cfg.AutoWinnerEnabled)
	fmt.Fprintf(out, "auto-winner threshold: %d clicks\n", cfg.AutoWinnerThreshold)
	fmt.Fprintf(out, "auto-winner days:      %d\n", cfg.AutoWinnerDays)
}
