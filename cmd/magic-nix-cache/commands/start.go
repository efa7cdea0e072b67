package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/internal/telemetry"
	"github.com/mightyiam/magic-nix-cache/pkg/api"
	"github.com/mightyiam/magic-nix-cache/pkg/backend"
	"github.com/mightyiam/magic-nix-cache/pkg/backend/gha"
	"github.com/mightyiam/magic-nix-cache/pkg/backend/s3"
	"github.com/mightyiam/magic-nix-cache/pkg/config"
	"github.com/mightyiam/magic-nix-cache/pkg/journal"
	"github.com/mightyiam/magic-nix-cache/pkg/metrics"
	"github.com/mightyiam/magic-nix-cache/pkg/session"
	"github.com/mightyiam/magic-nix-cache/pkg/store/nix"
	"github.com/mightyiam/magic-nix-cache/pkg/workflow"
	"github.com/spf13/cobra"
)

var startSkipSnapshot bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the magic-nix-cache daemon",
	Long: `Start the magic-nix-cache daemon in the foreground.

The daemon snapshots the Nix store on startup, serves the workflow API, and
exits after the workflow finish request has drained all upload queues (or on
SIGINT/SIGTERM).

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/magic-nix-cache/config.yaml.

Examples:
  # Start with default config
  magic-nix-cache start

  # Start with custom config file
  magic-nix-cache start --config /etc/magic-nix-cache/config.yaml

  # Start with environment variable overrides
  MNC_LOGGING_LEVEL=DEBUG magic-nix-cache start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startSkipSnapshot, "skip-snapshot", false, "Skip the initial store snapshot (take it later via the workflow start endpoint)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "magic-nix-cache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "magic-nix-cache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// Initialize metrics (if enabled)
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			logger.Info("Metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the upload journal (if configured). Without a journal every new
	// path is uploaded unconditionally on each run.
	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open upload journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("Journal close error", "error", err)
			}
		}()
		logger.Info("Upload journal opened", "path", cfg.Journal.Path)
	}

	// Initialize the store path resolver
	resolver, err := nix.New(nix.Options{
		Binary:   cfg.Store.Binary,
		StoreDir: cfg.Store.Dir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store resolver: %w", err)
	}

	// Build the configured upload backends
	backends, err := buildBackends(ctx, cfg, j)
	if err != nil {
		return err
	}
	if len(backends) == 0 {
		logger.Warn("No upload backends configured, new store paths will be discarded")
	}
	for _, b := range backends {
		logger.Info("Upload backend configured", "backend", b.Name())
	}

	sess := session.New(backends...)
	controller := workflow.New(sess, resolver, metrics.NewWorkflowMetrics())

	// Take the initial snapshot unless deferred to the workflow start endpoint
	if !startSkipSnapshot {
		numPaths, err := controller.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to snapshot store: %w", err)
		}
		logger.Info("Initial store snapshot taken", "num_paths", numPaths)
	}

	// Reload logging settings when the config file changes on disk
	if configPath := configFileInUse(GetConfigFile()); configPath != "" {
		if err := config.WatchLogging(ctx, configPath); err != nil {
			logger.Warn("Config watcher disabled", "error", err)
		}
	}

	apiServer := api.NewServer(cfg.API, controller, sess)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for the workflow to finish, an interrupt signal, or a server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Daemon is running. Press Ctrl+C to stop.", "run_id", controller.RunID())

	select {
	case <-sess.ShutdownRequested():
		// Finish already drained all backends, only the HTTP server is left.
		logger.Info("Workflow finished, shutting down")
		cancel()

	case sig := <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown", "signal", sig.String())
		cancel()

	case err := <-serverDone:
		if err != nil {
			logger.Error("API server error", "error", err)
			return err
		}
		logger.Info("API server stopped")
		return nil
	}

	select {
	case err := <-serverDone:
		if err != nil {
			logger.Error("API server shutdown error", "error", err)
			return err
		}
	case <-time.After(cfg.ShutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout)
	}

	logger.Info("Daemon stopped gracefully")
	return nil
}

// buildBackends constructs every enabled upload backend from configuration.
func buildBackends(ctx context.Context, cfg *config.Config, j *journal.Journal) ([]backend.Backend, error) {
	var backends []backend.Backend

	if cfg.Backends.GHA.Enabled {
		b, err := gha.New(ctx, gha.Config{
			URL:       cfg.Backends.GHA.URL,
			Token:     cfg.Backends.GHA.Token,
			KeyPrefix: cfg.Backends.GHA.KeyPrefix,
			Uploader: backend.UploaderConfig{
				QueueSize: cfg.Backends.GHA.QueueSize,
				Workers:   cfg.Backends.GHA.Workers,
			},
		}, j)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GitHub Actions cache backend: %w", err)
		}
		backends = append(backends, b)
	}

	if cfg.Backends.S3.Enabled {
		b, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.Backends.S3.Bucket,
			Region:          cfg.Backends.S3.Region,
			Endpoint:        cfg.Backends.S3.Endpoint,
			AccessKeyID:     cfg.Backends.S3.AccessKeyID,
			SecretAccessKey: cfg.Backends.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Backends.S3.ForcePathStyle,
			KeyPrefix:       cfg.Backends.S3.KeyPrefix,
			Uploader: backend.UploaderConfig{
				QueueSize: cfg.Backends.S3.QueueSize,
				Workers:   cfg.Backends.S3.Workers,
			},
		}, j)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		backends = append(backends, b)
	}

	return backends, nil
}
