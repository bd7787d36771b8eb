package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/store"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Long:  `List experiments with their status and counters, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.Status(status)
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("invalid status %q: use draft, running, paused or completed", status)
			}

			return opts.withStore(func(e *env) error {
				exps, err := e.store.ListExperiments(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("failed to list experiments: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(exps) == 0 {
					fmt.Fprintln(out, "No experiments yet.")
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Create one with:")
					fmt.Fprintln(out, `  vgoat create hero --a "Ship Faster" --b "Build Better"`)
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSPLIT\tVIEWS\tCLICKS\tCONVERSIONS\tWINNER\tCREATED")
				for _, exp := range exps {
					var views, clicks, conversions int64
					for _, v := range exp.Variants {
						views += v.Impressions
						clicks += v.Clicks
						conversions += v.Conversions
					}
					winner := exp.WinnerVariant
					if winner == "" {
						winner = "-"
					}

					fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\t%s\n",
						exp.ID,
						exp.Name,
						strings.ToUpper(string(exp.Status)),
						exp.SplitA, 100-exp.SplitA,
						formatNumber(views),
						formatNumber(clicks),
						formatNumber(conversions),
						winner,
						exp.CreatedAt.Format("2006-01-02"),
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show experiments with this status")
	return cmd
}
