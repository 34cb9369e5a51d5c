// Package enrich derives structured facts and a long-form article for each
// incident through an external text-generation service, validates the
// article, and stores the outcome.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/globaltime"
	"horse.fit/crashreports/internal/incident"
	"horse.fit/crashreports/internal/metrics"
)

// ErrNotConfigured is returned by Backfill when no text-generation
// credential is available.
var ErrNotConfigured = errors.New("text generation is not configured")

const (
	DefaultBackfillBatchSize  = 25
	DefaultBackfillMaxRetries = 3
	DefaultBackfillDelay      = 2 * time.Second

	maxSourceTextFetches = 3
)

// Store is the persistence the enricher needs. *db.Pool satisfies it.
type Store interface {
	GetIncident(ctx context.Context, incidentID int64) (*db.Incident, error)
	ListSources(ctx context.Context, incidentID int64) ([]db.IncidentSource, error)
	UpdateFacts(ctx context.Context, incidentID int64, facts datatypes.JSON, now time.Time) error
	UpdateArticle(ctx context.Context, incidentID int64, article db.ArticleUpdate, now time.Time) error
	UpdateQuality(ctx context.Context, incidentID int64, status, notes string, now time.Time) error
	ListIncidentsMissingArticle(ctx context.Context, afterID int64, limit int) ([]db.Incident, error)
	CountIncidentsMissingArticle(ctx context.Context) (int64, error)
}

// PageTextFetcher supplies full article text for a source URL.
type PageTextFetcher interface {
	FetchText(ctx context.Context, pageURL string) (string, error)
}

type Enricher struct {
	store   Store
	gen     Generator
	logger  zerolog.Logger
	pages   PageTextFetcher
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Enricher)

// WithPageText makes fact extraction read the first few source pages.
func WithPageText(pages PageTextFetcher) Option {
	return func(e *Enricher) {
		e.pages = pages
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

func NewEnricher(store Store, gen Generator, logger zerolog.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		store:  store,
		gen:    gen,
		logger: logger,
		now:    globaltime.UTC,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Enricher) Configured() bool {
	return e != nil && e.gen != nil && e.gen.Configured()
}

type EnrichOptions struct {
	// SkipIfEnriched leaves incidents that already carry an article alone.
	SkipIfEnriched bool
}

type EnrichResult struct {
	IncidentID       int64
	Slug             string
	Skipped          bool
	FactsExtracted   bool
	ArticleGenerated bool
	Attempts         int
	Status           incident.QualityStatus
	Validation       Validation
}

// EnrichIncident runs fact extraction then article generation for one
// incident. Generation is retried once when required headings are missing
// and the second result is accepted as-is. A nil article leaves the
// incident's article fields empty and is not an error.
func (e *Enricher) EnrichIncident(ctx context.Context, incidentID int64, opts EnrichOptions) (EnrichResult, error) {
	result := EnrichResult{IncidentID: incidentID}
	if !e.Configured() {
		e.logger.Debug().Int64("incident_id", incidentID).Msg("text generation not configured; skipping enrichment")
		result.Skipped = true
		return result, nil
	}

	started := e.now()
	inc, err := e.store.GetIncident(ctx, incidentID)
	if err != nil {
		return result, fmt.Errorf("load incident %d: %w", incidentID, err)
	}
	result.Slug = inc.Slug
	if opts.SkipIfEnriched && inc.HasArticle() {
		result.Skipped = true
		return result, nil
	}

	sources, err := e.store.ListSources(ctx, incidentID)
	if err != nil {
		return result, fmt.Errorf("load sources for incident %d: %w", incidentID, err)
	}

	facts := e.extractFacts(ctx, inc, sources)
	if facts != nil {
		if err := e.storeFacts(ctx, incidentID, facts); err != nil {
			return result, err
		}
		result.FactsExtracted = true
	}

	in := articleInput(inc, facts, sources)
	article := GenerateArticle(ctx, e.gen, in, e.logger)
	result.Attempts = 1
	if article != nil {
		if missing := MissingHeadings(article.Body); len(missing) > 0 {
			e.logger.Info().
				Str("slug", inc.Slug).
				Strs("missing", missing).
				Msg("article missing required headings; retrying once")
			result.Attempts = 2
			if retry := GenerateArticle(ctx, e.gen, in, e.logger); retry != nil {
				article = retry
			}
			if still := MissingHeadings(article.Body); len(still) > 0 {
				e.logger.Warn().Str("slug", inc.Slug).Strs("missing", still).Msg("accepting article with missing headings")
			}
		}
	}
	if article == nil {
		e.logger.Warn().Str("slug", inc.Slug).Msg("article generation failed; incident keeps empty article fields")
		e.metrics.Enrichment("none", e.now().Sub(started))
		return result, nil
	}

	validation := ValidateArticle(article.Body)
	if err := e.storeArticle(ctx, incidentID, article, validation); err != nil {
		return result, err
	}

	result.ArticleGenerated = true
	result.Validation = validation
	result.Status = validation.Status()
	e.metrics.Enrichment(string(result.Status), e.now().Sub(started))
	e.logger.Info().
		Str("slug", inc.Slug).
		Str("quality", string(result.Status)).
		Bool("facts", result.FactsExtracted).
		Int("attempts", result.Attempts).
		Msg("incident enriched")
	return result, nil
}

func (e *Enricher) extractFacts(ctx context.Context, inc *db.Incident, sources []db.IncidentSource) *incident.AccidentFacts {
	texts := sourceTexts(sources)
	if e.pages != nil {
		for i := range texts {
			if i >= maxSourceTextFetches {
				break
			}
			body, err := e.pages.FetchText(ctx, sources[i].URL)
			if err != nil {
				e.logger.Debug().Err(err).Str("url", sources[i].URL).Msg("source page text unavailable")
				continue
			}
			texts[i].Body = body
		}
	}
	return ExtractFacts(ctx, e.gen, FactsInput{Headline: inc.Headline, Sources: texts}, e.logger)
}

func (e *Enricher) storeFacts(ctx context.Context, incidentID int64, facts *incident.AccidentFacts) error {
	facts.Normalize()
	encoded, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	if err := e.store.UpdateFacts(ctx, incidentID, datatypes.JSON(encoded), e.now()); err != nil {
		return fmt.Errorf("store facts for incident %d: %w", incidentID, err)
	}
	return nil
}

func (e *Enricher) storeArticle(ctx context.Context, incidentID int64, article *GeneratedArticle, validation Validation) error {
	return e.storeArticleWithStatus(ctx, incidentID, article, validation.Status(), validation.Notes())
}

func (e *Enricher) storeArticleWithStatus(ctx context.Context, incidentID int64, article *GeneratedArticle, status incident.QualityStatus, notes string) error {
	secondary, err := json.Marshal(article.Meta.SecondaryKeywords)
	if err != nil {
		return fmt.Errorf("marshal secondary keywords: %w", err)
	}
	update := db.ArticleUpdate{
		SEOTitle:          article.Meta.SEOTitle,
		SEODescription:    article.Meta.MetaDescription,
		Body:              article.Body,
		PrimaryKeyword:    article.Meta.PrimaryKeyword,
		SecondaryKeywords: datatypes.JSON(secondary),
		QualityStatus:     string(status),
		QualityNotes:      notes,
	}
	if err := e.store.UpdateArticle(ctx, incidentID, update, e.now()); err != nil {
		return fmt.Errorf("store article for incident %d: %w", incidentID, err)
	}
	return nil
}

type BackfillOptions struct {
	BatchSize  int
	MaxRetries int
	Delay      time.Duration
	// Limit caps how many incidents one run processes; 0 means no cap.
	Limit int
}

type BackfillResult struct {
	Pending     int64
	Processed   int
	OK          int
	NeedsReview int
	Failed      int
	Errors      []string
}

// Backfill walks incidents without an article, or with a FAILED one, in id
// order. Each incident gets up to MaxRetries generation attempts and ends
// with a stored OK, NEEDS_REVIEW, or FAILED status. Failures stay eligible
// for the next run.
func (e *Enricher) Backfill(ctx context.Context, opts BackfillOptions) (BackfillResult, error) {
	var result BackfillResult
	if !e.Configured() {
		return result, ErrNotConfigured
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultBackfillMaxRetries
	}

	pending, err := e.store.CountIncidentsMissingArticle(ctx)
	if err != nil {
		return result, err
	}
	result.Pending = pending
	e.logger.Info().Int64("pending", pending).Int("batch_size", batchSize).Msg("backfill started")

	var afterID int64
	for {
		page, err := e.store.ListIncidentsMissingArticle(ctx, afterID, batchSize)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			if opts.Limit > 0 && result.Processed >= opts.Limit {
				return result, nil
			}
			if result.Processed > 0 && opts.Delay > 0 {
				if err := e.sleep(ctx, opts.Delay); err != nil {
					return result, err
				}
			}

			inc := page[i]
			status, err := e.backfillOne(ctx, &inc, maxRetries)
			result.Processed++
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", inc.Slug, err))
				e.logger.Warn().Err(err).Str("slug", inc.Slug).Msg("backfill incident failed")
				continue
			}
			switch status {
			case incident.QualityOK:
				result.OK++
			case incident.QualityNeedsReview:
				result.NeedsReview++
			default:
				result.Failed++
			}
		}
		afterID = page[len(page)-1].IncidentID
	}

	e.logger.Info().
		Int("processed", result.Processed).
		Int("ok", result.OK).
		Int("needs_review", result.NeedsReview).
		Int("failed", result.Failed).
		Int("errors", len(result.Errors)).
		Msg("backfill finished")
	return result, nil
}

func (e *Enricher) backfillOne(ctx context.Context, inc *db.Incident, maxRetries int) (incident.QualityStatus, error) {
	sources, err := e.store.ListSources(ctx, inc.IncidentID)
	if err != nil {
		return "", fmt.Errorf("load sources: %w", err)
	}

	facts := decodeStoredFacts(inc.ExtractedFacts)
	if facts == nil {
		facts = e.extractFacts(ctx, inc, sources)
		if facts != nil {
			if err := e.storeFacts(ctx, inc.IncidentID, facts); err != nil {
				return "", err
			}
		}
	}

	in := articleInput(inc, facts, sources)
	var (
		last           *GeneratedArticle
		lastValidation Validation
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		article := GenerateArticle(ctx, e.gen, in, e.logger)
		if article == nil {
			continue
		}
		validation := ValidateArticle(article.Body)
		last, lastValidation = article, validation
		if validation.Valid() {
			if err := e.storeArticle(ctx, inc.IncidentID, article, validation); err != nil {
				return "", err
			}
			e.metrics.Enrichment(string(validation.Status()), 0)
			return validation.Status(), nil
		}
		e.logger.Debug().
			Str("slug", inc.Slug).
			Int("attempt", attempt).
			Strs("errors", validation.Errors).
			Msg("backfill article failed validation")
	}

	notes := fmt.Sprintf("Article generation failed after %d attempts", maxRetries)
	if last != nil {
		notes = fmt.Sprintf("Validation failed after %d attempts\n%s", maxRetries, lastValidation.Notes())
		if err := e.storeArticleWithStatus(ctx, inc.IncidentID, last, incident.QualityFailed, notes); err != nil {
			return "", err
		}
	} else if err := e.store.UpdateQuality(ctx, inc.IncidentID, string(incident.QualityFailed), notes, e.now()); err != nil {
		return "", fmt.Errorf("store failed status: %w", err)
	}
	e.metrics.Enrichment(string(incident.QualityFailed), 0)
	return incident.QualityFailed, nil
}

func articleInput(inc *db.Incident, facts *incident.AccidentFacts, sources []db.IncidentSource) ArticleInput {
	in := ArticleInput{
		Headline:   inc.Headline,
		OccurredAt: inc.OccurredAt,
		Location:   incident.FormatLocation(deref(inc.City), deref(inc.State)),
		Summary:    deref(inc.Summary),
		Facts:      facts,
		Sources:    sourceTexts(sources),
	}
	return in
}

func sourceTexts(sources []db.IncidentSource) []SourceText {
	texts := make([]SourceText, 0, len(sources))
	for _, src := range sources {
		texts = append(texts, SourceText{Title: src.Title, Snippet: deref(src.Snippet)})
	}
	return texts
}

func decodeStoredFacts(raw datatypes.JSON) *incident.AccidentFacts {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	var facts incident.AccidentFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil
	}
	facts.Normalize()
	return &facts
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
