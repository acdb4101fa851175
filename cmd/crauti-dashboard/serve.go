package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rcourtman/crauti-dashboard/internal/config"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rcourtman/crauti-dashboard/internal/monitoring"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen, metricsAddr string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the gateway and serve the read-only dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, flags, "crauti-dashboard")
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddress = listen
			}
			if metricsAddr != "" {
				cfg.MetricsAddress = metricsAddr
			}
			if interval > 0 {
				cfg.PollInterval = interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "API listen address (overrides "+config.EnvListenAddress+")")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", "", "separate /metrics listen address (overrides "+config.EnvMetricsAddress+")")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (overrides "+config.EnvPollInterval+")")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("version", Version).
		Str("gateway", cfg.GatewayAdminURL).
		Dur("interval", cfg.PollInterval).
		Msg("Starting crauti-dashboard")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := newGatewayClient(cfg)
	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("Gateway admin API not reachable yet, polling will keep retrying")
	}

	store := monitoring.NewStore(client, monitoring.StoreOptions{
		Interval:  cfg.PollInterval,
		Normalize: newNormalizer(cfg).Config,
		Logger:    logging.WithComponent("store"),
		Metrics:   monitoring.NewPollMetrics(registry),
	})

	var apiGatherer prometheus.Gatherer
	if cfg.MetricsAddress == "" {
		apiGatherer = registry
	}
	apiSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newAPIHandler(store, apiGatherer),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	configWatcher, err := config.NewConfigWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher, .env changes will require restart")
	} else {
		if err := configWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer configWatcher.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		store.Start(ctx)
		<-ctx.Done()
		store.Stop()
		return nil
	})

	g.Go(func() error {
		return serveUntilDone(ctx, apiSrv, "api")
	})

	if cfg.MetricsAddress != "" {
		g.Go(func() error {
			return serveUntilDone(ctx, newMetricsServer(cfg.MetricsAddress, registry), "metrics")
		})
	}

	g.Go(func() error {
		reloadChan := make(chan os.Signal, 1)
		signal.Notify(reloadChan, syscall.SIGHUP)
		defer signal.Stop(reloadChan)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-reloadChan:
				log.Info().Msg("Received SIGHUP, reloading configuration and refreshing")
				if configWatcher != nil {
					configWatcher.ReloadConfig()
				}
				if _, err := store.Refresh(ctx); err != nil && !errors.Is(err, monitoring.ErrPollInProgress) {
					log.Warn().Err(err).Msg("Refresh after SIGHUP failed")
				}
			}
		}
	})

	err = g.Wait()
	log.Info().Msg("crauti-dashboard stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
