package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yairfalse/tapio-enrich/internal/observers/config"
	"github.com/yairfalse/tapio-enrich/internal/observers/filehash"
	"github.com/yairfalse/tapio-enrich/internal/output"
	"github.com/yairfalse/tapio-enrich/internal/telemetry"
	"github.com/yairfalse/tapio-enrich/pkg/version"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tapio-enrich",
		Short: "Enrich kernel file events with content hashes",
		Long: `tapio-enrich reads file events from the pinned eBPF ring buffer, hashes the files they
name from inside the mount namespace of the originating process and prints the enriched events.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := rootCmd.Flags()
	flags.String("config", "", "Path to YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Int("cache-capacity", config.DefaultCacheCapacity, "Digest records kept per shard")
	flags.Int("shards", 1, "Number of enrichment workers")
	flags.String("events-map", config.DefaultEventsMap, "bpffs path of the pinned events ring buffer")
	flags.String("output", "json", "Output format (json, json-pretty, yaml, human)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.String("otlp-endpoint", "", "Export traces and metrics to this OTLP gRPC endpoint")

	// Environment variable binding
	v.SetEnvPrefix("TAPIO_ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return rootCmd
}

// loadConfig reads the optional file then applies flags and environment on top
func loadConfig(v *viper.Viper) (*config.FileHashConfig, error) {
	cfg := config.NewFileHashConfig("filehash")
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("cache-capacity") {
		cfg.CacheCapacity = v.GetInt("cache-capacity")
	}
	if v.IsSet("shards") {
		cfg.Shards = v.GetInt("shards")
	}
	if v.IsSet("events-map") {
		cfg.EventsMap = v.GetString("events-map")
	}
	if v.IsSet("output") {
		cfg.Output = v.GetString("output")
	}
	if v.IsSet("metrics-addr") {
		cfg.MetricsAddr = v.GetString("metrics-addr")
	}
	if v.IsSet("otlp-endpoint") {
		cfg.OTLPEndpoint = v.GetString("otlp-endpoint")
	}
	cfg.Output = output.ParseFormat(cfg.Output)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if level == "debug" {
		logConfig = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logConfig.Level = lvl
	return logConfig.Build()
}

func run(ctx context.Context, cfg *config.FileHashConfig, out io.Writer) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	provider, err := telemetry.NewProvider(ctx, &telemetry.Config{
		ServiceName:    "tapio-enrich",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		PrometheusAddr: cfg.MetricsAddr,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down telemetry", zap.Error(err))
		}
	}()

	formatter, err := output.NewEventFormatter(cfg.Output, out)
	if err != nil {
		return err
	}
	if c, ok := formatter.(io.Closer); ok {
		defer c.Close()
	}

	observer, err := filehash.NewObserver(cfg, logger)
	if err != nil {
		return err
	}
	if err := observer.Start(ctx); err != nil {
		return err
	}

	logger.Info("tapio-enrich started",
		zap.String("version", version.Version),
		zap.String("commit", version.Get().GitCommit),
		zap.String("events_map", cfg.EventsMap),
		zap.Int("shards", cfg.Shards),
		zap.Int("cache_capacity", cfg.CacheCapacity))

	printErr := make(chan error, 1)
	go func() {
		defer close(printErr)
		for ev := range observer.Events() {
			if err := formatter.Print(ev); err != nil {
				printErr <- fmt.Errorf("failed to write event: %w", err)
				return
			}
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case <-observer.Drained():
		logger.Info("Event source closed")
	case runErr = <-printErr:
	}

	if err := observer.Stop(); err != nil {
		logger.Error("Error stopping observer", zap.Error(err))
		runErr = errors.Join(runErr, err)
	} else if err := <-printErr; err != nil && runErr == nil {
		// The events channel is closed, the printer flushes what was emitted
		runErr = err
	}

	stats := observer.Statistics()
	cacheStats := observer.CacheStats()
	logger.Info("tapio-enrich stopped",
		zap.Int64("events_processed", stats.EventsProcessed),
		zap.Int64("events_dropped", stats.EventsDropped),
		zap.Int64("errors", stats.ErrorCount),
		zap.Uint64("cache_hits", cacheStats.Hits),
		zap.Uint64("cache_misses", cacheStats.Misses))
	return runErr
}
