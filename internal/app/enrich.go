package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/metrics"
)

func runEnrich(args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	incidentID := fs.Int64("incident", 0, "Enrich this incident id once and exit")
	workers := fs.Int("workers", 1, "Concurrent queue consumers")
	onlyIfMissing := fs.Bool("only-if-missing", true, "Skip created jobs for incidents that already have an article")
	timeout := fs.Duration("timeout", 5*time.Minute, "Timeout for --incident mode")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *incidentID < 0 {
		fmt.Fprintln(os.Stderr, "--incident must be > 0")
		return 2
	}
	if *workers < 1 || *workers > 32 {
		fmt.Fprintln(os.Stderr, "--workers must be between 1 and 32")
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, stop := signalContext()
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("enrich failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	enricher := newEnricher(pool, cfg, logger, metrics.New())
	if !enricher.Configured() {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required for enrichment")
		return 1
	}

	if *incidentID > 0 {
		runCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()

		result, err := enricher.EnrichIncident(runCtx, *incidentID, enrich.EnrichOptions{})
		if err != nil {
			logger.Error().Err(err).Int64("incident_id", *incidentID).Msg("enrich incident failed")
			fmt.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
			return 1
		}
		fmt.Printf("incident %d (%s): facts=%t article=%t attempts=%d status=%s\n",
			result.IncidentID, result.Slug, result.FactsExtracted, result.ArticleGenerated, result.Attempts, result.Status)
		if notes := result.Validation.Notes(); notes != "" {
			fmt.Println(notes)
		}
		return 0
	}

	if cfg.RedisURL == "" {
		fmt.Fprintln(os.Stderr, "REDIS_URL is required to consume enrichment jobs; use --incident or backfill instead")
		return 1
	}
	q, _, err := openQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("enrich failed to open queue")
		fmt.Fprintf(os.Stderr, "Failed to open enrichment queue: %v\n", err)
		return 1
	}
	defer closeQuietly(logger, "queue", q)

	notifier := openNotifier(cfg, logger)
	defer closeQuietly(logger, "notifier", notifier)

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < *workers; i++ {
		worker := enrich.NewWorker(q, enricher, logger.With().Str("component", "worker").Int("worker", i).Logger(), enrich.WorkerOptions{
			OnlyIfMissing: *onlyIfMissing,
			Notifier:      notifier,
		})
		group.Go(func() error {
			return worker.Run(groupCtx)
		})
	}
	logger.Info().Int("workers", *workers).Msg("enrichment workers started")

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("enrichment worker failed")
		return 1
	}
	logger.Info().Msg("enrichment workers stopped")
	return 0
}
