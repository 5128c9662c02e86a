// Command meropipe runs the AEC market-intelligence ingestion pipeline:
// serve the HTTP service, ingest a single file, replay a prefix, watch a
// drop directory, or run configured scrape jobs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aecintel/meropipe/config"
)

var (
	cfgPath  string
	logLevel string
)

func main() {
	// Optional .env for local runs; absence is not an error.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "meropipe",
		Short:         "AEC market-intelligence ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd(), ingestCmd(), replayCmd(), watchCmd(), scrapeCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
