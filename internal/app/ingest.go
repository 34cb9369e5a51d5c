package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/ingest"
	"horse.fit/crashreports/internal/metrics"
)

type ingestSummary struct {
	RunID            int64    `json:"run_id"`
	FeedsFetched     int      `json:"feeds_fetched"`
	FeedErrors       []string `json:"feed_errors"`
	ItemsFetched     int      `json:"items_fetched"`
	Candidates       int      `json:"candidates"`
	NewIncidents     int      `json:"new_incidents"`
	UpdatedIncidents int      `json:"updated_incidents"`
	Skipped          int      `json:"skipped"`
	Errors           []string `json:"errors"`
}

type ingestFlags struct {
	envLoader  *cli.EnvLoader
	timeout    *time.Duration
	feeds      *string
	enrichNow  *bool
	jsonOutput *bool
}

func newIngestFlags(fs *flag.FlagSet) ingestFlags {
	return ingestFlags{
		envLoader:  cli.AddEnvFlag(fs, ".env", "Path to the .env file"),
		timeout:    fs.Duration("timeout", 15*time.Minute, "Command timeout"),
		feeds:      fs.String("feeds", "", "Comma-separated feed URLs (overrides FEEDS_FILE)"),
		enrichNow:  fs.Bool("enrich", true, "Enrich new incidents in this process before exiting (in-process queue only)"),
		jsonOutput: fs.Bool("json", false, "Print the run summary as JSON"),
	}
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	flags := newIngestFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "ingest does not accept positional args")
		return 2
	}

	cfg, logger, code := loadRuntime(flags.envLoader)
	if code != 0 {
		return code
	}

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, *flags.timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	q, inProcess, err := openQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to open queue")
		fmt.Fprintf(os.Stderr, "Failed to open enrichment queue: %v\n", err)
		return 1
	}
	defer closeQuietly(logger, "queue", q)

	notifier := openNotifier(cfg, logger)
	defer closeQuietly(logger, "notifier", notifier)

	m := metrics.New()
	var enricher *enrich.Enricher
	if inProcess {
		if *flags.enrichNow {
			enricher = newEnricher(pool, cfg, logger, m)
			if !enricher.Configured() {
				logger.Warn().Msg("OPENAI_API_KEY is not set; new incidents will stay unenriched")
				enricher = nil
			}
		}
		if enricher == nil {
			// Nothing would drain an in-process queue; backfill picks these up later.
			q = nil
		}
	} else {
		logger.Info().Msg("redis queue configured; jobs are left for enrichment workers")
	}

	pass := newIngestPass(cfg, pool, q, notifier, m, logger)

	var result ingest.RunResult
	group, groupCtx := errgroup.WithContext(ctx)
	if enricher != nil {
		worker := enrich.NewWorker(q, enricher, logger.With().Str("component", "worker").Logger(), enrich.WorkerOptions{
			OnlyIfMissing: true,
			Notifier:      notifier,
		})
		group.Go(func() error {
			return worker.Run(groupCtx)
		})
	}
	group.Go(func() error {
		if enricher != nil {
			// Closing lets the worker drain buffered jobs and return.
			defer q.Close()
		}
		var runErr error
		result, runErr = pass.Run(groupCtx, "cli", splitFeeds(*flags.feeds))
		return runErr
	})
	runErr := group.Wait()

	summary := ingestSummary{
		RunID:            result.RunID,
		FeedsFetched:     result.FeedsFetched,
		FeedErrors:       result.FeedErrors,
		ItemsFetched:     result.ItemsFetched,
		Candidates:       result.Candidates,
		NewIncidents:     result.Batch.NewIncidents,
		UpdatedIncidents: result.Batch.UpdatedIncidents,
		Skipped:          result.Batch.Skipped,
		Errors:           result.Batch.Errors,
	}
	printIngestSummary(summary, *flags.jsonOutput)

	if runErr != nil {
		logger.Error().Err(runErr).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", runErr)
		return 1
	}
	return 0
}

func splitFeeds(raw string) []string {
	parts := strings.Split(raw, ",")
	urls := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func printIngestSummary(s ingestSummary, asJSON bool) {
	if asJSON {
		if s.FeedErrors == nil {
			s.FeedErrors = []string{}
		}
		if s.Errors == nil {
			s.Errors = []string{}
		}
		encoded, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode summary: %v\n", err)
			return
		}
		fmt.Println(string(encoded))
		return
	}

	fmt.Printf("run %d: feeds=%d feed_errors=%d items=%d candidates=%d new=%d updated=%d skipped=%d errors=%d\n",
		s.RunID, s.FeedsFetched, len(s.FeedErrors), s.ItemsFetched, s.Candidates,
		s.NewIncidents, s.UpdatedIncidents, s.Skipped, len(s.Errors))
	for _, msg := range s.FeedErrors {
		fmt.Printf("  feed error: %s\n", msg)
	}
	for _, msg := range s.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}
