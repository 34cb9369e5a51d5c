package ingest

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/crashreports/internal/classify"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/dedupe"
	"horse.fit/crashreports/internal/feed"
	"horse.fit/crashreports/internal/incident"
)

// FeedFetcher is satisfied by *feed.Fetcher.
type FeedFetcher interface {
	FetchAll(ctx context.Context, feedURLs []string) feed.Result
}

// CandidateNormalizer is satisfied by *classify.Normalizer.
type CandidateNormalizer interface {
	Normalize(items []feed.Item) ([]incident.Candidate, classify.Stats)
}

type RunOptions struct {
	FeedURLs    []string
	TriggeredBy string
}

type RunResult struct {
	RunID        int64
	FeedsFetched int
	FeedErrors   []string
	ItemsFetched int
	Candidates   int
	Batch        BatchResult
}

// Run performs one full ingest pass and records it in the ingest run ledger.
// Feed failures and per-candidate failures are reported in the result; only
// ledger failures abort the run.
func (c *Coordinator) Run(ctx context.Context, fetcher FeedFetcher, normalizer CandidateNormalizer, opts RunOptions) (RunResult, error) {
	var result RunResult
	if fetcher == nil || normalizer == nil {
		return result, fmt.Errorf("ingest run requires a fetcher and a normalizer")
	}
	if len(opts.FeedURLs) == 0 {
		return result, fmt.Errorf("no feeds configured")
	}

	runID, err := c.store.CreateIngestRun(ctx, opts.TriggeredBy, c.now())
	if err != nil {
		return result, fmt.Errorf("start ingest run: %w", err)
	}
	result.RunID = runID
	c.logger.Info().Int64("run_id", runID).Int("feeds", len(opts.FeedURLs)).Msg("ingest run started")

	fetched := fetcher.FetchAll(ctx, opts.FeedURLs)
	result.FeedErrors = fetched.Errors
	result.FeedsFetched = len(opts.FeedURLs) - len(fetched.Errors)
	result.ItemsFetched = len(fetched.Items)
	c.metrics.FeedsFetched(result.FeedsFetched, len(fetched.Errors), len(fetched.Items))
	for _, msg := range fetched.Errors {
		c.logger.Warn().Int64("run_id", runID).Str("error", msg).Msg("feed fetch failed")
	}

	candidates, stats := normalizer.Normalize(fetched.Items)
	c.metrics.Candidates("accepted", stats.Accepted)
	c.metrics.Candidates("incomplete", stats.Incomplete)
	c.metrics.Candidates("not_accident", stats.NotAccident)
	c.metrics.Candidates("wrong_language", stats.WrongLang)

	candidates = dedupe.DedupeCandidates(candidates)
	result.Candidates = len(candidates)
	result.Batch = c.BatchUpsert(ctx, candidates)

	runStats := db.IngestRunStats{
		FeedsFetched:       result.FeedsFetched,
		FeedErrors:         len(result.FeedErrors),
		ItemsFetched:       result.ItemsFetched,
		CandidatesAccepted: result.Candidates,
		NewIncidents:       result.Batch.NewIncidents,
		UpdatedIncidents:   result.Batch.UpdatedIncidents,
		Skipped:            result.Batch.Skipped,
		Errors:             len(result.Batch.Errors),
	}
	errMsg := ""
	if ctx.Err() != nil {
		errMsg = truncateError(ctx.Err().Error())
	}

	// The ledger row is closed even when the run context was cancelled.
	finishedAt := c.now()
	if err := c.store.FinishIngestRun(context.WithoutCancel(ctx), runID, runStats, errMsg, finishedAt); err != nil {
		return result, fmt.Errorf("finish ingest run: %w", err)
	}
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	c.metrics.IngestRun(status, finishedAt)

	c.logger.Info().
		Int64("run_id", runID).
		Int("feeds_ok", result.FeedsFetched).
		Int("feed_errors", len(result.FeedErrors)).
		Int("items", result.ItemsFetched).
		Int("candidates", result.Candidates).
		Int("new", result.Batch.NewIncidents).
		Int("updated", result.Batch.UpdatedIncidents).
		Int("skipped", result.Batch.Skipped).
		Int("errors", len(result.Batch.Errors)).
		Msg("ingest run finished")
	return result, ctx.Err()
}

func truncateError(msg string) string {
	trimmed := strings.TrimSpace(msg)
	if len(trimmed) <= maxRunErrorLength {
		return trimmed
	}
	return trimmed[:maxRunErrorLength]
}
