package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/lifecycle"
	"github.com/gkobilansky/variant-goat/internal/store"
)

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		a, b                store.Variant
		description, goal   string
		split               int
		autoWinner          bool
		threshold, days     int
		buttonText, linkURL string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a draft experiment with two variants, A and B.

Settings that are not given on the command line (split, auto-winner) are
copied from the global settings ('vgoat config get').

Examples:
  vgoat create hero --a "Ship Faster" --b "Build Better"
  vgoat create pricing --a "Simple pricing" --b "Pay as you go" --split 70 --goal upgrade`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			for _, v := range []*store.Variant{&a, &b} {
				if v.ButtonText == "" {
					v.ButtonText = buttonText
				}
				if v.ButtonLink == "" {
					v.ButtonLink = linkURL
				}
			}

			draft := lifecycle.Draft{
				Name:        args[0],
				Description: description,
				Goal:        goal,
				Variants:    []store.Variant{a, b},
			}
			if flags.Changed("split") {
				draft.SplitA = &split
			}
			if flags.Changed("auto-winner") {
				draft.AutoWinnerEnabled = &autoWinner
			}
			if flags.Changed("threshold") {
				draft.AutoWinnerThreshold = &threshold
			}
			if flags.Changed("days") {
				draft.AutoWinnerDays = &days
			}

			return opts.withStore(func(e *env) error {
				exp, err := e.controller.Create(cmd.Context(), draft)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment %d '%s' (draft)\n", exp.ID, exp.Name)
				for _, v := range exp.Variants {
					fmt.Fprintf(out, "  %s: %s\n", v.Key, v.Title)
				}
				fmt.Fprintf(out, "  Split: %d%% A / %d%% B\n", exp.SplitA, 100-exp.SplitA)
				if exp.AutoWinnerEnabled {
					fmt.Fprintf(out, "  Auto-winner: %d clicks or %d days\n", exp.AutoWinnerThreshold, exp.AutoWinnerDays)
				}
				fmt.Fprintf(out, "\nStart it with: vgoat start %d\n", exp.ID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.Title, "a", "", "headline for variant A (required)")
	f.StringVar(&a.Subtitle, "a-subtitle", "", "subtitle for variant A")
	f.StringVar(&a.ButtonText, "a-button", "", "button text for variant A")
	f.StringVar(&b.Title, "b", "", "headline for variant B (required)")
	f.StringVar(&b.Subtitle, "b-subtitle", "", "subtitle for variant B")
	f.StringVar(&b.ButtonText, "b-button", "", "button text for variant B")
	f.StringVar(&buttonText, "button", "", "button text for both variants")
	f.StringVar(&linkURL, "link", "", "button link for both variants")
	f.StringVar(&description, "description", "", "experiment description")
	f.StringVar(&goal, "goal", "", "conversion goal")
	f.IntVar(&split, "split", 50, "percentage of visitors shown variant A")
	f.BoolVar(&autoWinner, "auto-winner", false, "complete automatically once a criterion is met")
	f.IntVar(&threshold, "threshold", 0, "auto-winner total click threshold (0 disables)")
	f.IntVar(&days, "days", 0, "auto-winner days since start (0 disables)")
	cmd.MarkFlagRequired("a")
	cmd.MarkFlagRequired("b")

	return cmd
}
