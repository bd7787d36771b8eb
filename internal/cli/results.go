package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/stats"
)

func newResultsCmd(opts *rootOptions) *cobra.Command {
	var segments bool

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show detailed results for an experiment",
		Long:  `Show rates per variant with 95% confidence intervals, the leader and its significance.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withStore(func(e *env) error {
				report, err := stats.NewAggregator(e.store, e.cfg.Storage.Timeout).Metrics(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to compute results: %w", err)
				}
				printReport(cmd.OutOrStdout(), report, segments)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&segments, "segments", false, "also break results down by device")
	return cmd
}

func printReport(out io.Writer, r *stats.Report, withSegments bool) {
	fmt.Fprintf(out, "EXPERIMENT: %d %s\n", r.ExperimentID, r.Name)
	fmt.Fprintf(out, "STATUS: %s\n", r.Status)
	if r.WinnerVariant != "" {
		fmt.Fprintf(out, "WINNER: %s\n", r.WinnerVariant)
	}
	fmt.Fprintln(out)

	printVariantTable(out, r.PerVariant, r.Leader)
	fmt.Fprintf(out, "%-8s  %-8d  %-7d  %-11d\n", "TOTAL", r.Totals.Impressions, r.Totals.Clicks, r.Totals.Conversions)
	fmt.Fprintln(out)

	if r.Leader != "" && r.Totals.Impressions > 0 {
		confPct := r.Confidence * 100
		switch {
		case r.Confident:
			fmt.Fprintf(out, "Statistical significance: %.1f%% confident %s is the winner\n", confPct, r.Leader)
		case confPct >= 90:
			fmt.Fprintf(out, "Statistical significance: %.1f%% confident %s leads (not yet significant)\n", confPct, r.Leader)
		default:
			fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
		}
	} else {
		fmt.Fprintln(out, "No views recorded yet.")
	}

	if withSegments {
		for _, seg := range r.Segments {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "DEVICE: %s\n", seg.DeviceType)
			printVariantTable(out, seg.PerVariant, "")
		}
	}
}

func printVariantTable(out io.Writer, vs []stats.VariantMetrics, leader string) {
	fmt.Fprintln(out, "VARIANT   VIEWS     CLICKS   CONVERSIONS  CTR      RATE     95% CI")
	fmt.Fprintln(out, strings.Repeat("─", 78))

	for _, v := range vs {
		indicator := ""
		if v.VariantKey == leader && len(vs) > 1 {
			indicator = " ← LEADING"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		if v.Impressions == 0 {
			ciStr = "N/A"
		}

		fmt.Fprintf(out, "%-8s  %-8d  %-7d  %-11d  %-7s  %-7s  %s%s\n",
			v.VariantKey,
			v.Impressions,
			v.Clicks,
			v.Conversions,
			formatPercent(v.CTR),
			formatPercent(v.ConversionRate),
			ciStr,
			indicator,
		)
	}
}
