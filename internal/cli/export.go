package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/store"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export raw event data",
		Long: `Export raw event data in CSV or JSON format.

Examples:
  vgoat export 3 --format csv > hero-events.csv
  vgoat export 3 --format json > hero-events.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return opts.withStore(func(e *env) error {
				ctx := cmd.Context()
				if _, err := e.store.GetExperiment(ctx, id); err != nil {
					if store.IsNotFound(err) {
						return fmt.Errorf("experiment %d not found", id)
					}
					return fmt.Errorf("failed to get experiment: %w", err)
				}

				events, err := e.store.ListEvents(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to get events: %w", err)
				}

				if format == "csv" {
					return exportCSV(cmd.OutOrStdout(), events)
				}
				return exportJSON(cmd.OutOrStdout(), id, events)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	return cmd
}

func exportCSV(out io.Writer, events []*store.Event) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"timestamp", "variant", "event_type", "device_type", "visitor_hash"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
			e.VariantKey,
			string(e.Type),
			e.DeviceType,
			e.VisitorHash,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	ExperimentID int64       `json:"experiment_id"`
	Events       []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Timestamp   int64  `json:"timestamp"`
	Variant     string `json:"variant"`
	EventType   string `json:"event_type"`
	DeviceType  string `json:"device_type"`
	VisitorHash string `json:"visitor_hash"`
}

func exportJSON(out io.Writer, experimentID int64, events []*store.Event) error {
	export := jsonExport{
		ExperimentID: experimentID,
		Events:       make([]jsonEvent, len(events)),
	}
	for i, e := range events {
		export.Events[i] = jsonEvent{
			Timestamp:   e.CreatedAt.Unix(),
			Variant:     e.VariantKey,
			EventType:   string(e.Type),
			DeviceType:  e.DeviceType,
			VisitorHash: e.VisitorHash,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
