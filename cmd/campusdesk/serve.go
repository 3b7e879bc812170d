package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/vango-dev/campusdesk/internal/config"
	"github.com/vango-dev/campusdesk/internal/telemetry"
	"github.com/vango-dev/campusdesk/pkg/middleware"
	"github.com/vango-dev/campusdesk/pkg/persist"
	"github.com/vango-dev/campusdesk/pkg/server"
	"github.com/vango-dev/campusdesk/pkg/slices"
	"github.com/vango-dev/campusdesk/pkg/store"
	"github.com/vango-dev/campusdesk/pkg/toast"
)

func serveCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the state server",
		Long: `Run the state server.

Configuration is read from campusdesk.json in --dir, when present, and
from CAMPUSDESK_* environment variables. The server stops gracefully on
SIGINT or SIGTERM and flushes the persisted state before exiting.

Examples:
  campusdesk serve
  campusdesk serve --port=9090
  CAMPUSDESK_PERSIST_BACKEND=sqlite CAMPUSDESK_PERSIST_DSN=desk.db campusdesk serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir(cmd))
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")

	return cmd
}

// app is a fully wired server process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	notifier *toast.Notifier
	storage  persist.Storage
	persist  *persist.Persistor
	server   *server.Server
	registry *prometheus.Registry

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := cfg.NewLogger(logOut)
	a := &app{cfg: cfg, logger: logger}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		return nil, err
	}
	a.shutdownTracing = shutdownTracing

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var mws []store.Middleware
	if cfg.Metrics.Enabled {
		mws = append(mws, middleware.Prometheus(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(a.registry),
		))
	}
	if cfg.Tracing.Endpoint != "" {
		mws = append(mws, middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}
	mws = append(mws, middleware.Logger(logger.With("component", "dispatch")))

	a.store, err = store.Configure(store.Options{
		Reducers:    slices.Reducers(),
		Middleware:  mws,
		OnViolation: middleware.RecordViolation,
		Logger:      logger.With("component", "store"),
	})
	if err != nil {
		a.shutdownTracing(context.Background())
		return nil, err
	}

	a.storage, err = cfg.OpenStorage(ctx)
	if err != nil {
		a.shutdownTracing(context.Background())
		return nil, err
	}
	a.persist = persist.NewPersistor(a.store, a.storage, cfg.PersistorConfig(), logger.With("component", "persist"))
	if err := a.persist.Start(ctx); err != nil {
		// The store keeps its initial state; the next write replaces the
		// unreadable snapshot.
		logger.Warn("could not restore persisted state, starting fresh",
			"backend", cfg.Persist.Backend, "error", err)
	}

	a.notifier = toast.NewNotifier(
		toast.WithDefaultDuration(cfg.ToastDuration()),
		toast.WithLogger(logger.With("component", "toast")),
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Address = cfg.Address()
	srvCfg.ShutdownTimeout = cfg.ShutdownTimeout()
	if len(cfg.Server.AllowedOrigins) > 0 {
		srvCfg.CheckOrigin = server.AllowOrigins(cfg.Server.AllowedOrigins)
	}
	a.server = server.New(srvCfg, server.Options{
		Store:     a.store,
		Notifier:  a.notifier,
		Persistor: a.persist,
		Gatherer:  a.registry,
		Logger:    logger.With("component", "server"),
	})
	return a, nil
}

// run serves until ctx is done, then releases everything newApp acquired.
func (a *app) run(ctx context.Context) error {
	errs := []error{a.server.Run(ctx)}

	a.notifier.Close()
	errs = append(errs, a.storage.Close())

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.shutdownTracing(tctx))

	return errors.Join(errs...)
}
