package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/metrics"
	"horse.fit/crashreports/internal/queue"
	"horse.fit/crashreports/internal/schedule"
)

func runSchedule(args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	ingestSpec := fs.String("ingest-cron", "", "Cron spec for ingest (default INGEST_CRON; \"-\" disables)")
	backfillSpec := fs.String("backfill-cron", "", "Cron spec for backfill (default BACKFILL_CRON; \"-\" disables)")
	runNow := fs.Bool("run-now", false, "Run one ingest pass before waiting for the schedule")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("schedule failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	q, inProcess, err := openQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("schedule failed to open queue")
		fmt.Fprintf(os.Stderr, "Failed to open enrichment queue: %v\n", err)
		return 1
	}
	defer closeQuietly(logger, "queue", q)

	notifier := openNotifier(cfg, logger)
	defer closeQuietly(logger, "notifier", notifier)

	m := metrics.New()
	enricher := newEnricher(pool, cfg, logger, m)

	group, groupCtx := errgroup.WithContext(ctx)

	var ingestQueue queue.Queue = q
	if inProcess {
		if enricher.Configured() {
			worker := enrich.NewWorker(q, enricher, logger.With().Str("component", "worker").Logger(), enrich.WorkerOptions{
				OnlyIfMissing: true,
				Notifier:      notifier,
			})
			group.Go(func() error {
				return worker.Run(groupCtx)
			})
		} else {
			ingestQueue = nil
		}
	}
	pass := newIngestPass(cfg, pool, ingestQueue, notifier, m, logger)

	scheduler, err := schedule.New(cfg.ScheduleTimezone, logger.With().Str("component", "schedule").Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid SCHEDULE_TIMEZONE: %v\n", err)
		return 2
	}

	ingestTask := func(taskCtx context.Context) error {
		_, err := pass.Run(taskCtx, "schedule", nil)
		return err
	}
	if err := scheduler.Add("ingest", resolveSpec(*ingestSpec, cfg.IngestCron), ingestTask); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid ingest schedule: %v\n", err)
		return 2
	}

	backfill := resolveSpec(*backfillSpec, cfg.BackfillCron)
	if backfill != "" && !enricher.Configured() {
		logger.Warn().Msg("OPENAI_API_KEY is not set; scheduled backfill disabled")
		backfill = ""
	}
	if err := scheduler.Add("backfill", backfill, func(taskCtx context.Context) error {
		result, err := enricher.Backfill(taskCtx, backfillOptions(cfg.BackfillBatchSize, cfg.BackfillMaxRetries, cfg.BackfillDelay))
		logger.Info().
			Int64("pending", result.Pending).
			Int("processed", result.Processed).
			Int("ok", result.OK).
			Int("needs_review", result.NeedsReview).
			Int("failed", result.Failed).
			Msg("scheduled backfill summary")
		return err
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid backfill schedule: %v\n", err)
		return 2
	}

	for name, next := range scheduler.Next() {
		logger.Info().Str("task", name).Time("next", next).Msg("next scheduled run")
	}

	if *runNow {
		if err := ingestTask(ctx); err != nil {
			logger.Error().Err(err).Msg("initial ingest failed")
		}
	}

	group.Go(func() error {
		return scheduler.Run(groupCtx)
	})
	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("scheduler failed")
		fmt.Fprintf(os.Stderr, "Scheduler failed: %v\n", err)
		return 1
	}
	return 0
}

// resolveSpec prefers the flag value; "-" disables the task.
func resolveSpec(flagValue, configValue string) string {
	switch flagValue {
	case "-":
		return ""
	case "":
		return configValue
	default:
		return flagValue
	}
}
