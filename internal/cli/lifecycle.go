package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/lifecycle"
	"github.com/gkobilansky/variant-goat/internal/store"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start or resume an experiment",
		Long: `Move a draft or paused experiment to running. Visitors are bucketed into
the running experiment from the next request on.

Example:
  vgoat start 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withStore(func(e *env) error {
				exp, err := e.controller.Start(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to start experiment %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment %d '%s' is running (split %d/%d)\n", exp.ID, exp.Name, exp.SplitA, 100-exp.SplitA)
				return nil
			})
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Pause or complete a running experiment",
		Long: `Stop a running experiment. Paused experiments can be started again;
completed ones cannot.

Examples:
  vgoat stop 3
  vgoat stop 3 --status completed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			target := store.Status(status)
			if target != store.StatusPaused && target != store.StatusCompleted {
				return fmt.Errorf("invalid status %q: use paused or completed", status)
			}

			if target == store.StatusCompleted && !yes {
				ok, err := confirm(cmd, fmt.Sprintf("Complete experiment %d? This cannot be undone", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return opts.withStore(func(e *env) error {
				exp, err := e.controller.Stop(cmd.Context(), id, target)
				if err != nil {
					return fmt.Errorf("failed to stop experiment %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment %d '%s' is %s\n", exp.ID, exp.Name, exp.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(store.StatusPaused), "target status (paused or completed)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <id>",
		Short: "Run the auto-winner rules for a running experiment now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withStore(func(e *env) error {
				v, err := e.controller.EvaluateAutoWinner(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to evaluate experiment %d: %w", id, err)
				}

				out := cmd.OutOrStdout()
				switch v.Reason {
				case lifecycle.ReasonDisabled:
					fmt.Fprintf(out, "Auto-winner is disabled for experiment %d\n", id)
				case lifecycle.ReasonPending:
					fmt.Fprintf(out, "No winner yet: %d clicks after %d days\n", v.TotalClicks, v.DaysRunning)
				default:
					fmt.Fprintf(out, "Experiment %d completed by %s rule, winner %s\n", id, v.Reason, v.Winner)
				}
				return nil
			})
		},
	}
}
