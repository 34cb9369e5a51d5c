package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IngestRunStats are the counters written when a run finishes.
type IngestRunStats struct {
	FeedsFetched       int
	FeedErrors         int
	ItemsFetched       int
	CandidatesAccepted int
	NewIncidents       int
	UpdatedIncidents   int
	Skipped            int
	Errors             int
}

func (p *Pool) CreateIngestRun(ctx context.Context, triggeredBy string, now time.Time) (int64, error) {
	trigger := strings.TrimSpace(triggeredBy)
	if trigger == "" {
		trigger = "cli"
	}
	var runID int64
	err := p.QueryRow(ctx, `
INSERT INTO crash.ingest_runs (
	triggered_by,
	started_at,
	status,
	created_at,
	updated_at
)
VALUES ($1, $2, 'running', $2, $2)
RETURNING run_id`, trigger, now.UTC()).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("insert ingest run: %w", err)
	}
	return runID, nil
}

// FinishIngestRun closes a run as completed, or failed when errMsg is set.
func (p *Pool) FinishIngestRun(ctx context.Context, runID int64, stats IngestRunStats, errMsg string, now time.Time) error {
	status := "completed"
	if strings.TrimSpace(errMsg) != "" {
		status = "failed"
	}
	_, err := p.Exec(ctx, `
UPDATE crash.ingest_runs
SET
	status = $2::crash.ingest_run_status,
	finished_at = $3,
	feeds_fetched = $4,
	feed_errors = $5,
	items_fetched = $6,
	candidates_accepted = $7,
	new_incidents = $8,
	updated_incidents = $9,
	skipped = $10,
	errors = $11,
	error_message = $12,
	updated_at = $3
WHERE run_id = $1`,
		runID,
		status,
		now.UTC(),
		stats.FeedsFetched,
		stats.FeedErrors,
		stats.ItemsFetched,
		stats.CandidatesAccepted,
		stats.NewIncidents,
		stats.UpdatedIncidents,
		stats.Skipped,
		stats.Errors,
		nullableText(errMsg),
	)
	if err != nil {
		return fmt.Errorf("finish ingest run %d: %w", runID, err)
	}
	return nil
}

// LatestIngestRun returns ErrNotFound before the first run.
func (p *Pool) LatestIngestRun(ctx context.Context) (*IngestRun, error) {
	var run IngestRun
	err := p.QueryRow(ctx, `
SELECT
	run_id,
	ingest_run_uuid::text,
	triggered_by,
	started_at,
	finished_at,
	status::text,
	feeds_fetched,
	feed_errors,
	items_fetched,
	candidates_accepted,
	new_incidents,
	updated_incidents,
	skipped,
	errors,
	error_message
FROM crash.ingest_runs
ORDER BY started_at DESC, run_id DESC
LIMIT 1`).Scan(
		&run.RunID,
		&run.IngestRunUUID,
		&run.TriggeredBy,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.FeedsFetched,
		&run.FeedErrors,
		&run.ItemsFetched,
		&run.CandidatesAccepted,
		&run.NewIncidents,
		&run.UpdatedIncidents,
		&run.Skipped,
		&run.Errors,
		&run.ErrorMessage,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query latest ingest run: %w", err)
	}
	return &run, nil
}
