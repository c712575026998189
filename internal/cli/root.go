package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/resilience/internal/control"
	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/stylelog"
)

var (
	cfgPath string
	isDebug bool
	offline bool
)

var rootCmd = &cobra.Command{
	Use:   "resilienced",
	Short: "Error resilience service",
	Long:  `Resilienced classifies failures, retries with backoff, serves degraded-mode fallbacks, and ships sanitized diagnostics.`,
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&offline, "offline", false, "start with offline fallback mode enabled")
}

func runServe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if offline {
		cfg.Engine.Fallback.Offline = true
	}

	// Initialize Service
	app, err := control.New(cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start service", "error", err)
		os.Exit(1)
	}

	slog.Info("Service started", "config", cfgPath, "port", cfg.Server.Port)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
