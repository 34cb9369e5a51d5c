package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/metrics"
)

func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	batchSize := fs.Int("batch-size", 0, "Incidents per batch (default BACKFILL_BATCH_SIZE)")
	maxRetries := fs.Int("max-retries", 0, "Generation attempts per incident (default BACKFILL_MAX_RETRIES)")
	delay := fs.Duration("delay", -1, "Pause between batches (default BACKFILL_DELAY)")
	limit := fs.Int("limit", 0, "Stop after this many incidents; 0 processes all")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *batchSize < 0 || *maxRetries < 0 || *limit < 0 {
		fmt.Fprintln(os.Stderr, "--batch-size, --max-retries and --limit must be >= 0")
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
		logger.Error().Err(err).Msg("backfill failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	opts := backfillOptions(cfg.BackfillBatchSize, cfg.BackfillMaxRetries, cfg.BackfillDelay)
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}
	if *maxRetries > 0 {
		opts.MaxRetries = *maxRetries
	}
	if *delay >= 0 {
		opts.Delay = *delay
	}
	opts.Limit = *limit

	enricher := newEnricher(pool, cfg, logger, metrics.New())
	result, err := enricher.Backfill(ctx, opts)
	printBackfillResult(result)
	if err != nil {
		if errors.Is(err, enrich.ErrNotConfigured) {
			fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required for backfill")
			return 1
		}
		logger.Error().Err(err).Msg("backfill failed")
		fmt.Fprintf(os.Stderr, "Backfill failed: %v\n", err)
		return 1
	}
	return 0
}

func printBackfillResult(r enrich.BackfillResult) {
	fmt.Printf("backfill: pending=%d processed=%d ok=%d needs_review=%d failed=%d\n",
		r.Pending, r.Processed, r.OK, r.NeedsReview, r.Failed)
	for _, msg := range r.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}
