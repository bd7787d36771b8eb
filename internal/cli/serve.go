package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/variant-goat/internal/config"
	"github.com/gkobilansky/variant-goat/internal/lifecycle"
	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/publisher"
	"github.com/gkobilansky/variant-goat/internal/server"
	"github.com/gkobilansky/variant-goat/internal/store"
	"github.com/gkobilansky/variant-goat/internal/supervisor"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the variant-goat HTTP server.

The server provides:
  - Visitor endpoints (GET /api/ab/variant, POST /api/ab/event)
  - Admin endpoints for experiments, lifecycle and settings
  - Health check and prometheus metrics

A background scheduler evaluates auto-winner rules for running experiments.

Example:
  vgoat serve --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
				cfg.Server.Port = port
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	sqlStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer sqlStore.Close()

	var s store.Store = sqlStore
	if cfg.Breaker.Enabled {
		s = store.NewBreakerStore(sqlStore, store.BreakerSettings{
			Name:         cfg.Storage.Driver,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			OpenTimeout:  cfg.Breaker.OpenTimeout,
		})
	}

	pub := publisher.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer pub.Close()

	controller := lifecycle.NewController(s,
		lifecycle.WithPublisher(pub),
		lifecycle.WithTimeout(cfg.Storage.Timeout),
		lifecycle.WithPublishTimeout(cfg.Kafka.PublishTimeout),
	)

	token, err := server.ResolveToken(cfg.Auth.AdminToken, cfg.Auth.TokenFile)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Store:        s,
		Controller:   controller,
		Token:        token,
		StoreTimeout: cfg.Storage.Timeout,
		CORSOrigins:  cfg.Server.CORSOrigins,
		RateLimit:    cfg.Server.RateLimit,
		RateWindow:   cfg.Server.RateWindow,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, addr, cfg.Server.ShutdownTimeout))
	if cfg.Lifecycle.Enabled {
		tree.AddBackgroundService(lifecycle.NewScheduler(controller, s, cfg.Lifecycle.Interval))
	}

	printBanner(cmd, cfg, token)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("server stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config, token string) {
	out := cmd.OutOrStdout()
	host := cfg.Server.Host
	if host == "" {
		host = "localhost"
	}
	base := fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "variant-goat running on %s\n", base)
	fmt.Fprintf(out, "Visitor endpoint: %s%s/variant\n", base, server.APIPrefix)
	fmt.Fprintf(out, "Admin token:      %s\n", token)
	if cfg.Auth.AdminToken == "" && cfg.Auth.TokenFile != "" {
		fmt.Fprintf(out, "                  (saved to %s, show it again with 'vgoat token')\n", cfg.Auth.TokenFile)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}
