package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aecintel/meropipe/scrape"
	"github.com/aecintel/meropipe/watch"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <ref>",
		Short: "Process a single file from the drop directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.ProcessFile(cmd.Context(), args[0], time.Now())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [prefix]",
		Short: "Reprocess every file under a prefix of the drop directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			summary, err := a.service.Replay(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the drop directory and ingest arriving files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			w := watch.New(cfg.DataDir, watch.Options{
				Debounce:     cfg.Watch.Debounce,
				ScanExisting: cfg.Watch.ScanExisting,
			})
			return w.Run(ctx, func(ctx context.Context, ref string) error {
				_, err := a.service.ProcessFile(ctx, ref, time.Now())
				return err
			})
		},
	}
}

func scrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run the configured scrape jobs and write results to the drop directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Scrape.Jobs) == 0 {
				return fmt.Errorf("no scrape jobs configured")
			}
			if cfg.Scrape.OutputDir == "" {
				cfg.Scrape.OutputDir = cfg.DataDir
			}

			s := scrape.New(cfg.Scrape)
			defer s.Close()

			summary := s.Run(cmd.Context())
			if err := printJSON(summary); err != nil {
				return err
			}
			if summary.Scraped == 0 && summary.Failed > 0 {
				return fmt.Errorf("all %d scrape jobs failed", summary.Failed)
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
