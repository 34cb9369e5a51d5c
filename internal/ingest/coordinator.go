// Package ingest turns feed candidates into stored incidents: one incident
// per dedupe key, one source row per reporting URL.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/dedupe"
	"horse.fit/crashreports/internal/globaltime"
	"horse.fit/crashreports/internal/incident"
	"horse.fit/crashreports/internal/metrics"
	"horse.fit/crashreports/internal/notify"
	"horse.fit/crashreports/internal/queue"
	"horse.fit/crashreports/internal/slug"
)

const maxRunErrorLength = 4000

// Store is the persistence the coordinator needs. *db.Pool satisfies it.
type Store interface {
	FindIncidentByDedupeKey(ctx context.Context, dedupeKey string) (*db.Incident, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	SourceURLExists(ctx context.Context, incidentID int64, url string) (bool, error)
	CreateIncidentWithSource(ctx context.Context, in db.NewIncident, src db.NewSource, now time.Time) (*db.Incident, error)
	CreateSource(ctx context.Context, incidentID int64, src db.NewSource, now time.Time) (bool, error)
	CreateIngestRun(ctx context.Context, triggeredBy string, now time.Time) (int64, error)
	FinishIngestRun(ctx context.Context, runID int64, stats db.IngestRunStats, errMsg string, now time.Time) error
}

// Outcome describes what a single upsert did.
type Outcome struct {
	IncidentID  int64
	Slug        string
	IsNew       bool
	SourceAdded bool
}

type BatchResult struct {
	NewIncidents     int
	UpdatedIncidents int
	Skipped          int
	Errors           []string
}

type Coordinator struct {
	store    Store
	queue    queue.Queue
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

type Option func(*Coordinator)

// WithQueue enables enrichment handoff for newly created incidents.
func WithQueue(q queue.Queue) Option {
	return func(c *Coordinator) {
		c.queue = q
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(store Store, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		notifier: notify.Nop{},
		logger:   logger,
		now:      globaltime.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert stores one candidate. An existing incident keeps its first-seen
// body and only gains a source row when the URL is new to it.
func (c *Coordinator) Upsert(ctx context.Context, cand incident.Candidate) (Outcome, error) {
	if c == nil || c.store == nil {
		return Outcome{}, fmt.Errorf("ingest coordinator is not initialized")
	}
	if strings.TrimSpace(cand.Headline) == "" {
		return Outcome{}, fmt.Errorf("candidate headline is required")
	}
	if cand.OccurredAt.IsZero() {
		return Outcome{}, fmt.Errorf("candidate occurred_at is required")
	}

	key := dedupe.MakeIncidentKey(cand)
	existing, err := c.store.FindIncidentByDedupeKey(ctx, key)
	switch {
	case err == nil:
		return c.attachSource(ctx, existing, cand)
	case !errors.Is(err, db.ErrNotFound):
		c.metrics.Upsert("error")
		return Outcome{}, fmt.Errorf("look up dedupe key: %w", err)
	}

	return c.create(ctx, cand, key)
}

func (c *Coordinator) create(ctx context.Context, cand incident.Candidate, key string) (Outcome, error) {
	base := slug.Build(cand)
	for attempt := 1; attempt <= 2; attempt++ {
		candidateSlug, err := slug.Unique(ctx, base, c.store.SlugExists)
		if err != nil {
			c.metrics.Upsert("error")
			return Outcome{}, fmt.Errorf("allocate slug: %w", err)
		}

		created, err := c.store.CreateIncidentWithSource(ctx, newIncident(cand, candidateSlug, key), newSource(cand), c.now())
		if err == nil {
			c.afterCreate(ctx, created, cand)
			return Outcome{IncidentID: created.IncidentID, Slug: created.Slug, IsNew: true, SourceAdded: true}, nil
		}
		if !errors.Is(err, db.ErrDuplicate) {
			c.metrics.Upsert("error")
			return Outcome{}, fmt.Errorf("create incident: %w", err)
		}

		// Another writer may have created the same key between lookup and insert.
		existing, lookupErr := c.store.FindIncidentByDedupeKey(ctx, key)
		if lookupErr == nil {
			return c.attachSource(ctx, existing, cand)
		}
		if !errors.Is(lookupErr, db.ErrNotFound) {
			c.metrics.Upsert("error")
			return Outcome{}, fmt.Errorf("look up dedupe key after conflict: %w", lookupErr)
		}
		c.logger.Debug().Str("slug", candidateSlug).Int("attempt", attempt).Msg("slug taken concurrently; retrying")
	}

	c.metrics.Upsert("error")
	return Outcome{}, fmt.Errorf("create incident: %w", db.ErrDuplicate)
}

func (c *Coordinator) afterCreate(ctx context.Context, created *db.Incident, cand incident.Candidate) {
	c.metrics.Upsert("created")
	c.logger.Info().
		Int64("incident_id", created.IncidentID).
		Str("slug", created.Slug).
		Str("location", cand.LocationLabel()).
		Msg("incident created")

	c.publish(ctx, notify.Event{
		Type:       notify.EventIncidentCreated,
		IncidentID: created.IncidentID,
		Slug:       created.Slug,
		SourceURL:  cand.Link,
	})

	if c.queue == nil {
		return
	}
	// The upsert never waits on enrichment. A job refused by a full queue is
	// picked up by backfill since the incident has no article yet.
	job := queue.NewJob(created.IncidentID, queue.ReasonCreated)
	if err := queue.Offer(ctx, c.queue, job); err != nil {
		if errors.Is(err, queue.ErrFull) {
			c.metrics.JobDropped(string(job.Reason))
			c.logger.Warn().Str("slug", created.Slug).Msg("enrichment queue full; leaving incident for backfill")
			return
		}
		c.metrics.JobEnqueued(string(job.Reason), false)
		c.logger.Warn().Err(err).Str("slug", created.Slug).Msg("enqueue enrichment job failed")
		return
	}
	c.metrics.JobEnqueued(string(job.Reason), true)
}

func (c *Coordinator) attachSource(ctx context.Context, existing *db.Incident, cand incident.Candidate) (Outcome, error) {
	out := Outcome{IncidentID: existing.IncidentID, Slug: existing.Slug}

	link := strings.TrimSpace(cand.Link)
	if link == "" {
		c.metrics.Upsert("unchanged")
		return out, nil
	}
	known, err := c.store.SourceURLExists(ctx, existing.IncidentID, link)
	if err != nil {
		c.metrics.Upsert("error")
		return out, fmt.Errorf("check source url: %w", err)
	}
	if known {
		c.metrics.Upsert("unchanged")
		return out, nil
	}

	added, err := c.store.CreateSource(ctx, existing.IncidentID, newSource(cand), c.now())
	if err != nil {
		c.metrics.Upsert("error")
		return out, fmt.Errorf("add source: %w", err)
	}
	if !added {
		c.metrics.Upsert("unchanged")
		return out, nil
	}

	out.SourceAdded = true
	c.metrics.Upsert("source_added")
	c.logger.Info().
		Int64("incident_id", existing.IncidentID).
		Str("slug", existing.Slug).
		Str("url", link).
		Msg("source added to incident")
	c.publish(ctx, notify.Event{
		Type:       notify.EventIncidentSourceAdded,
		IncidentID: existing.IncidentID,
		Slug:       existing.Slug,
		SourceURL:  link,
	})
	return out, nil
}

func (c *Coordinator) publish(ctx context.Context, evt notify.Event) {
	if err := c.notifier.Publish(ctx, evt); err != nil {
		c.logger.Warn().Err(err).Str("event", evt.Type).Int64("incident_id", evt.IncidentID).Msg("publish event failed")
	}
}

// BatchUpsert processes candidates in order. A failing candidate is
// recorded as "<headline>: <error>" and the batch continues.
func (c *Coordinator) BatchUpsert(ctx context.Context, candidates []incident.Candidate) BatchResult {
	result := BatchResult{Errors: []string{}}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", cand.Headline, err))
			continue
		}
		out, err := c.Upsert(ctx, cand)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", cand.Headline, err))
			c.logger.Warn().Err(err).Str("headline", cand.Headline).Msg("upsert candidate failed")
		case out.IsNew:
			result.NewIncidents++
		case out.SourceAdded:
			result.UpdatedIncidents++
		default:
			result.Skipped++
		}
	}
	return result
}

func newIncident(cand incident.Candidate, incidentSlug, key string) db.NewIncident {
	country := strings.TrimSpace(cand.Country)
	if country == "" {
		country = incident.DefaultCountry
	}
	return db.NewIncident{
		Slug:       incidentSlug,
		Headline:   strings.TrimSpace(cand.Headline),
		Summary:    strings.TrimSpace(cand.Snippet),
		City:       strings.TrimSpace(cand.City),
		State:      strings.TrimSpace(cand.State),
		Country:    country,
		OccurredAt: cand.OccurredAt.UTC(),
		DedupeKey:  key,
	}
}

func newSource(cand incident.Candidate) db.NewSource {
	return db.NewSource{
		SourceType:  incident.SourceTypeRSS,
		URL:         strings.TrimSpace(cand.Link),
		Title:       strings.TrimSpace(cand.Headline),
		Publisher:   strings.TrimSpace(cand.Publisher),
		Snippet:     strings.TrimSpace(cand.Snippet),
		PublishedAt: cand.OccurredAt.UTC(),
	}
}
