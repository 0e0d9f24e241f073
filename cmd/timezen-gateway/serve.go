package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tphakala/timezen-gateway/internal/api"
	"github.com/tphakala/timezen-gateway/internal/cache"
	"github.com/tphakala/timezen-gateway/internal/conf"
	"github.com/tphakala/timezen-gateway/internal/datastore"
	"github.com/tphakala/timezen-gateway/internal/datastore/repository"
	"github.com/tphakala/timezen-gateway/internal/errors"
	"github.com/tphakala/timezen-gateway/internal/interceptor"
	"github.com/tphakala/timezen-gateway/internal/lifecycle"
	"github.com/tphakala/timezen-gateway/internal/logger"
	"github.com/tphakala/timezen-gateway/internal/metrics"
	"github.com/tphakala/timezen-gateway/internal/records"
	"github.com/tphakala/timezen-gateway/internal/refresh"
	"github.com/tphakala/timezen-gateway/internal/state"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the cache generation and serve the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.NewSlogLogger(os.Stderr, logger.LogLevel(settings.Log.Level), nil)

	if settings.Sentry.Enabled {
		if err := errors.EnableTelemetry(settings.Sentry.DSN, "timezen-gateway"); err != nil {
			log.Warn("failed to enable error telemetry", logger.Error(err))
		} else {
			defer errors.DisableTelemetry()
		}
	}

	db, err := datastore.Open(settings.Database)
	if err != nil {
		return err
	}

	cacheRepo := repository.NewCacheRepository(db)
	stateRepo := repository.NewStateRepository(db)

	manager := cache.NewManager(cacheRepo, settings.Cache.HotTTL.Std(), log)
	defer manager.Stop()

	upstream, err := url.Parse(settings.Upstream)
	if err != nil {
		return fmt.Errorf("invalid upstream URL %q: %w", settings.Upstream, err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	lc := lifecycle.NewController(manager, http.DefaultClient, upstream, settings.Cache, m, log)

	inspector := records.NewInspector(log)
	transport := interceptor.New(nil, lc, settings.Backend.Origins, inspector, m, log)

	states := state.NewStore(stateRepo, settings.State, log)

	refresher := refresh.NewController(
		&http.Client{Transport: transport},
		settings.Refresh.Interval.Std(),
		log,
	)

	server, err := api.New(settings, lc, transport, states, refresher, registry, log)
	if err != nil {
		return err
	}

	// Install the configured generation before accepting traffic. The
	// first install activates immediately; later deployments wait for a
	// SKIP_WAITING message unless skip_waiting is set.
	gen := lifecycle.Generation{
		StaticName:  settings.Cache.StaticName,
		RuntimeName: settings.Cache.RuntimeName,
	}
	result, err := lc.Install(context.Background(), gen, settings.Cache.StaticAssets)
	if err != nil {
		return err
	}
	log.Info("gateway install complete",
		logger.Int("assets_cached", result.Cached),
		logger.Int("assets_failed", result.Failed))

	manager.StartJanitor(
		settings.Cache.RuntimeName,
		settings.Cache.RuntimeMaxAge.Std(),
		settings.Cache.JanitorInterval.Std(),
	)
	refresher.Start()
	defer refresher.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(settings.Listen)
	}()
	log.Info("gateway listening", logger.String("addr", settings.Listen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		log.Info("shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
