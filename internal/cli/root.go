package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/config"
	"github.com/gkobilansky/variant-goat/internal/logging"
)

// rootOptions carries the global flags to every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
}

// NewRootCmd builds the vgoat command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "vgoat",
		Short: "Variant Goat - a self-hosted A/B testing engine for landing pages",
		Long: `Variant Goat serves two-variant landing page experiments, records views,
clicks and conversions, and picks a winner once enough traffic has arrived.

Running without a subcommand starts the server (same as 'vgoat serve').`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $VGOAT_CONFIG or ./vgoat.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite database path (overrides storage settings)")

	serve := newServeCmd(opts)
	cmd.RunE = serve.RunE

	cmd.AddCommand(
		serve,
		newCreateCmd(opts),
		newListCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newWinnerCmd(opts),
		newEvaluateCmd(opts),
		newResultsCmd(opts),
		newExportCmd(opts),
		newRecountCmd(opts),
		newConfigCmd(opts),
		newDeleteCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the layered configuration, applies flag overrides and
// configures logging.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = o.dbPath
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})
	return cfg, nil
}
