package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/app"
	"github.com/hoistscout/hoistscout/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	// Parse command-line flags
	flag.Parse()

	// Handle version flag
	if *showVersion || *showVersionV {
		fmt.Printf("HoistScout version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Initialize logger
	// 3. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("hoistscout.toml"); err == nil {
			configFiles = append(configFiles, "hoistscout.toml")
		} else if _, err := os.Stat("deployments/local/hoistscout.toml"); err == nil {
			// Fallback: check deployments/local for users running from project root
			configFiles = append(configFiles, "deployments/local/hoistscout.toml")
		}
	}

	// 1. Load configuration (default -> file1 -> file2 -> ... -> env)
	// Later config files override earlier ones
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		// Use temporary logger for startup errors
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	// 2. Initialize logger with final configuration
	logger = common.InitLogger(config)

	// 3. Print banner
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("database", config.Database.Path).
		Str("log_level", config.Logging.Level).
		Int("worker_concurrency", config.Worker.Concurrency).
		Msg("Application configuration loaded")

	// Initialize application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Start the worker pool and the reaper scheduler
	application.Pool.Start(ctx)
	if config.Scheduler.Enabled {
		if err := application.Scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	logger.Info().
		Int("workers", config.Worker.Concurrency).
		Bool("scheduler", config.Scheduler.Enabled).
		Msg("Workers ready - Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	// Graceful shutdown: stop claiming, let in-flight jobs finish
	logger.Info().Msg("Shutting down workers")
	if config.Scheduler.Enabled {
		application.Scheduler.Stop()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		application.Pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("Shutdown timed out with jobs still in flight")
	}

	logger.Info().Msg("Workers stopped")
}
