package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/crashreports/internal/notify"
	"horse.fit/crashreports/internal/queue"
)

const dequeueErrorBackoff = time.Second

// JobHandler enriches one incident. *Enricher satisfies it.
type JobHandler interface {
	EnrichIncident(ctx context.Context, incidentID int64, opts EnrichOptions) (EnrichResult, error)
}

type WorkerOptions struct {
	// OnlyIfMissing makes "created" jobs skip incidents that already have an
	// article. Regenerate and backfill jobs always run.
	OnlyIfMissing bool
	Notifier      notify.Notifier
}

// Worker consumes enrichment jobs until its context ends or the queue closes.
type Worker struct {
	queue    queue.Queue
	handler  JobHandler
	logger   zerolog.Logger
	opts     WorkerOptions
	notifier notify.Notifier
}

func NewWorker(q queue.Queue, handler JobHandler, logger zerolog.Logger, opts WorkerOptions) *Worker {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Worker{
		queue:    q,
		handler:  handler,
		logger:   logger,
		opts:     opts,
		notifier: notifier,
	}
}

// Run returns nil on context cancellation or queue close.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrClosed):
				w.logger.Info().Msg("enrichment queue closed; worker stopping")
				return nil
			case ctx.Err() != nil:
				return nil
			}
			w.logger.Error().Err(err).Msg("dequeue enrichment job")
			if sleepErr := sleepContext(ctx, dequeueErrorBackoff); sleepErr != nil {
				return nil
			}
			continue
		}
		w.Handle(ctx, job)
	}
}

// Handle processes one job. Failures are logged and never stop the worker.
func (w *Worker) Handle(ctx context.Context, job queue.Job) {
	log := w.logger.With().
		Str("job_id", job.JobID).
		Int64("incident_id", job.IncidentID).
		Str("reason", string(job.Reason)).
		Logger()

	opts := EnrichOptions{
		SkipIfEnriched: w.opts.OnlyIfMissing && job.Reason == queue.ReasonCreated,
	}
	result, err := w.handler.EnrichIncident(ctx, job.IncidentID, opts)
	if err != nil {
		log.Error().Err(err).Msg("enrichment job failed")
		return
	}
	if result.Skipped {
		log.Debug().Msg("enrichment job skipped")
		return
	}
	if !result.ArticleGenerated {
		return
	}

	evt := notify.Event{
		Type:          notify.EventIncidentEnriched,
		IncidentID:    job.IncidentID,
		Slug:          result.Slug,
		QualityStatus: string(result.Status),
	}
	if err := w.notifier.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Msg("publish enriched event")
	}
}
