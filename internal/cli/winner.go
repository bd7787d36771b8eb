package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWinnerCmd(opts *rootOptions) *cobra.Command {
	var (
		variant string
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "winner <id>",
		Short: "Declare a winner and complete an experiment",
		Long: `Declare a winning variant for a running experiment and complete it.

Example:
  vgoat winner 3 --variant B`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if !yes {
				ok, err := confirm(cmd, fmt.Sprintf("Declare %s the winner of experiment %d", variant, id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return opts.withStore(func(e *env) error {
				exp, err := e.controller.Complete(cmd.Context(), id, variant)
				if err != nil {
					return fmt.Errorf("failed to set winner: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Declared winner for experiment %d '%s': variant %s\n", exp.ID, exp.Name, exp.WinnerVariant)
				fmt.Fprintln(cmd.OutOrStdout(), "Experiment has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variant, "variant", "v", "", "winning variant key, A or B (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.MarkFlagRequired("variant")
	return cmd
}
