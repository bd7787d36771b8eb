package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/config"
	"github.com/gkobilansky/variant-goat/internal/lifecycle"
	"github.com/gkobilansky/variant-goat/internal/publisher"
	"github.com/gkobilansky/variant-goat/internal/store"
)

// env is what a one-shot command gets to work with.
type env struct {
	cfg        *config.Config
	store      store.Store
	controller *lifecycle.Controller
}

// withStore loads config, opens the database, executes the function, and
// handles cleanup.
func (o *rootOptions) withStore(fn func(*env) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	pub := publisher.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer pub.Close()

	return fn(&env{
		cfg:   cfg,
		store: s,
		controller: lifecycle.NewController(s,
			lifecycle.WithPublisher(pub),
			lifecycle.WithTimeout(cfg.Storage.Timeout),
			lifecycle.WithPublishTimeout(cfg.Kafka.PublishTimeout),
		),
	})
}

func openStore(cfg *config.Config) (*store.SQLStore, error) {
	s, err := store.Connect(store.Options{
		Driver:       cfg.Storage.Driver,
		Path:         cfg.Storage.Path,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid experiment id %q", arg)
	}
	return id, nil
}

// confirm asks a yes/no question on the command's terminal.
func confirm(cmd *cobra.Command, label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     io.NopCloser(cmd.InOrStdin()),
		Stdout:    nopWriteCloser{cmd.OutOrStdout()},
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
