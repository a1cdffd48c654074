package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-text-crawler/internal/app"
	"github.com/JakeFAU/site-text-crawler/internal/config"
	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/logging"
)

// newRunCmd creates the 'run' subcommand.
func newRunCmd(cfgFile *string, opts ...app.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "run <baseURL> [maxPages] [delay]",
		Short: "Crawl one website and save its pages as text",
		Example: `  sitecrawler run https://example.com
  sitecrawler run example.com 50 2`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyArgs(&cfg, args[1:]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			base, err := crawler.ParseBase(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, cmd.OutOrStdout(), cfg, base, opts...)
		},
	}
}

// applyArgs overrides crawler.max_pages and crawler.delay_seconds from positionals.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("maxPages must be an integer: %w", err)
		}
		cfg.Crawler.MaxPages = n
	}
	if len(args) > 1 {
		d, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("delay must be a number of seconds: %w", err)
		}
		cfg.Crawler.DelaySeconds = d
	}
	return nil
}

func runCrawl(ctx context.Context, out io.Writer, cfg config.Config, base crawler.Target, opts ...app.Option) error {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting crawl",
		zap.String("base_url", base.URL),
		zap.Int("max_pages", cfg.Crawler.MaxPages),
		zap.Duration("delay", cfg.Crawler.Delay()),
		zap.String("output_dir", cfg.Crawler.OutputDir),
	)

	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	eng, err := a.Engine(base)
	if err != nil {
		return err
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	go func() {
		if err := a.ServeMetrics(metricsCtx); err != nil {
			logger.Warn("Metrics listener stopped", zap.Error(err))
		}
	}()

	summary, err := eng.Run(ctx)
	printSummary(out, summary)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Crawl interrupted; progress saved", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

func printSummary(out io.Writer, s crawler.Summary) {
	fmt.Fprintln(out, "Scraping complete!")
	fmt.Fprintf(out, "Successfully downloaded: %d pages\n", s.Succeeded)
	fmt.Fprintf(out, "Already visited: %d\n", max(s.Visited-s.Succeeded, 0))
	fmt.Fprintf(out, "Failed: %d\n", s.FailedTotal)
}
