package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ShariqSheikhh/AssemblyOS/internal/config"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
	httpx "github.com/ShariqSheikhh/AssemblyOS/internal/infra/http"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/logger"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/tracing"
)

type serveOptions struct {
	migrate bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "apply database migrations before serving")
	return cmd
}

func runServe(parent context.Context, rootOpts *RootOptions, opts *serveOptions) error {
	cfg, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
	})
	if err != nil {
		return err
	}

	if opts.migrate && cfg.Storage.Driver == config.DriverPostgres {
		if err := db.Migrate(cfg.Postgres.DSN); err != nil {
			log.Error("migrations failed", "err", err)
			return err
		}
		log.Info("migrations applied")
	}

	var gatherer prometheus.Gatherer
	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		reg, gatherer = prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}

	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		log.Error("startup failed", "err", err)
		return err
	}
	defer func() { _ = a.Close() }()

	api := httpx.NewAPI(a.engine, a.store, log, cfg.Notify.LowStockThreshold)
	srv := httpx.New(cfg.HTTP.Addr, api, gatherer)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver)

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			log.Error("http server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	err = errors.Join(err, srv.Shutdown(shutdownCtx), shutdownTracing(shutdownCtx))
	log.Info("graceful shutdown complete")
	return err
}
