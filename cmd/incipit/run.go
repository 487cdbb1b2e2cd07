package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/jpillora/requestlog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"incipit-hq/incipit/pkg/cli"
	"incipit-hq/incipit/pkg/config"
	"incipit-hq/incipit/pkg/dashboard"
	"incipit-hq/incipit/pkg/history"
	"incipit-hq/incipit/pkg/history/retention"
	"incipit-hq/incipit/pkg/history/storage"
	"incipit-hq/incipit/pkg/proxy"
	"incipit-hq/incipit/pkg/routing"
	"incipit-hq/incipit/pkg/server"
	"incipit-hq/incipit/pkg/telemetry/logging"
	"incipit-hq/incipit/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the incipit proxy",
	Long: `Start the incipit proxy with the specified configuration.

The proxy listens on addr:port and routes every request by its Host header.
The configuration file is watched; edits take effect without a restart.
SIGINT or SIGTERM stops accepting connections, closes open WebSocket
tunnels and drains in-flight requests.

Examples:
  # Start with incipit.yaml from the current directory
  incipit run

  # Start with a custom config
  incipit run --config /etc/incipit/incipit.yaml

  # Override the listen address
  incipit run --listen 127.0.0.1:8080

  # Validate config without starting the proxy
  incipit run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address (host:port)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the proxy")
}

// applyRunOverrides applies command-line flags to a freshly loaded config.
// It runs on every reload so the overrides survive file edits.
func applyRunOverrides(cfg *config.Config) error {
	if runFlags.listenAddress != "" {
		host, portStr, err := net.SplitHostPort(runFlags.listenAddress)
		if err != nil {
			return cli.NewConfigError("listen", err.Error())
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return cli.NewConfigError("listen", fmt.Sprintf("invalid port %q", portStr))
		}
		if host != "" {
			cfg.Addr = host
		}
		cfg.Port = port
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return config.Validate(cfg)
}

func runServer(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	load := func() (*config.Config, error) {
		cfg, err := config.LoadConfigWithEnvOverrides(path)
		if err != nil {
			return nil, err
		}
		if err := applyRunOverrides(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := load()
	if err != nil {
		return cli.WrapConfigError(err)
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "warning", w)
	}

	if runFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%d services)\n", len(cfg.Services))
		return nil
	}

	printBanner(cmd, cfg, path)

	store := config.NewStore(cfg, path)

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.IsEnabled() {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		collector.SetConfigInfo(store.Version(), len(cfg.Services))
	}

	var (
		historyStore history.Storage
		recorder     *history.Recorder
		scheduler    *retention.Scheduler
	)
	if cfg.History.Enabled {
		historyStore, err = storage.Open(cfg.History.Driver, cfg.DBPath, logger)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open history storage: %w", err))
		}
		defer historyStore.Close()

		recorder = history.NewRecorder(historyStore, history.RecorderConfig{
			BufferSize: cfg.History.BufferSize,
			Observer:   observerOrNil(collector),
			Logger:     logger,
		})

		pruner := retention.NewPruner(historyStore, retention.Config{
			RetentionDays: cfg.History.RetentionDays,
			MaxRecords:    cfg.History.MaxRecords,
			PruneSchedule: cfg.History.PruneSchedule,
		}, prunedObserverOrNil(collector), logger)
		scheduler = retention.NewScheduler(pruner)
	}

	router := routing.NewConfigRouter(store)
	tunnel := proxy.NewTunnel(proxy.TunnelConfig{
		ConnectTimeout:   cfg.Proxy.ConnectTimeout,
		HandshakeTimeout: cfg.Proxy.HandshakeTimeout,
		ExposeErrors:     cfg.Proxy.ShouldExposeErrors(),
		Metrics:          collector,
		Logger:           logger,
	})

	dash := dashboard.New(dashboard.Config{
		Store:       store,
		Stats:       router.Stats(),
		Tunnels:     tunnel,
		History:     historyStore,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     versionInfo(),
		Logger:      logger,
	})

	forwarder := proxy.NewForwarder(proxy.ForwarderConfig{
		ConnectTimeout:        cfg.Proxy.ConnectTimeout,
		ResponseHeaderTimeout: cfg.Proxy.ResponseHeaderTimeout,
		ExposeErrors:          cfg.Proxy.ShouldExposeErrors(),
		Dashboard:             dash,
		Metrics:               collector,
		Logger:                logger,
	})

	var httpHandler http.Handler = forwarder
	if cfg.Telemetry.Logging.AccessLog {
		httpHandler = requestlog.Wrap(forwarder)
	}

	var sink proxy.HistorySink
	if recorder != nil {
		sink = recorder
	}

	frontend := proxy.NewFrontend(proxy.FrontendConfig{
		Router:    router,
		Forwarder: forwarder,
		Tunnel:    tunnel,
		HTTP:      httpHandler,
		History:   sink,
		Metrics:   collector,
		Logger:    logger,
	})

	srv := server.NewServer(server.ConfigFrom(cfg, logger), frontend)
	srv.RegisterOnShutdown(tunnel.CloseAll)
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(logger)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if cfg.Reload.IsEnabled() {
		watcher := config.NewWatcher(store, config.WatcherOptions{
			Debounce: cfg.Reload.Debounce,
			Schedule: cfg.Reload.Schedule,
			Load:     load,
			Observer: &reloadObserver{store: store, metrics: collector, logger: logger},
			Logger:   logger,
		})
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	err = g.Wait()

	// The shutdown hook runs on its own goroutine. Wait for every tunnel to
	// hand over its record before the recorder drains.
	tunnel.CloseAll()

	if recorder != nil {
		if cerr := recorder.Close(); cerr != nil {
			logger.Error("failed to flush history", "error", cerr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewCommandError("run", err)
	}

	logger.Info("incipit stopped")
	return nil
}

// reloadObserver keeps metrics in step with the store and logs the warnings
// of each newly installed configuration.
type reloadObserver struct {
	store   *config.Store
	metrics *metrics.Collector
	logger  *slog.Logger
}

func (o *reloadObserver) ObserveReload(result string, version uint64) {
	if o.metrics != nil {
		o.metrics.ObserveReload(result, version)
	}
	if result != config.ReloadSuccess {
		return
	}

	cfg := o.store.Current()
	if o.metrics != nil {
		o.metrics.SetConfigInfo(version, len(cfg.Services))
	}
	for _, w := range cfg.Warnings() {
		o.logger.Warn("configuration warning", "warning", w, "version", version)
	}
}

func observerOrNil(c *metrics.Collector) history.Observer {
	if c == nil {
		return nil
	}
	return c
}

func prunedObserverOrNil(c *metrics.Collector) retention.Observer {
	if c == nil {
		return nil
	}
	return c
}

func printBanner(cmd *cobra.Command, cfg *config.Config, path string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Incipit %s\n", Version)
	fmt.Fprintf(out, "  Config:    %s\n", path)
	fmt.Fprintf(out, "  Listen:    %s\n", cfg.ListenAddress())
	if cfg.IncipitHost != "" {
		fmt.Fprintf(out, "  Dashboard: http://%s\n", cfg.IncipitHost)
	}
	fmt.Fprintf(out, "  Services:  %d\n", len(cfg.Services))
	if cfg.History.Enabled {
		fmt.Fprintf(out, "  History:   %s (%s)\n", cfg.DBPath, cfg.History.Driver)
	}
}
