package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const incidentColumns = `
	i.incident_id,
	i.incident_uuid::text,
	i.slug,
	i.headline,
	i.summary,
	i.city,
	i.state,
	i.country,
	i.occurred_at,
	i.dedupe_key,
	i.extracted_facts,
	i.seo_title,
	i.seo_description,
	i.article_body,
	i.article_quality_status::text,
	i.article_quality_notes,
	i.primary_keyword,
	i.secondary_keywords,
	i.enriched_at,
	i.created_at,
	i.updated_at`

// NewIncident is the first-sighting body of an incident.
type NewIncident struct {
	Slug       string
	Headline   string
	Summary    string
	City       string
	State      string
	Country    string
	OccurredAt time.Time
	DedupeKey  string
}

// NewSource is one article URL reporting on an incident.
type NewSource struct {
	SourceType  string
	URL         string
	Title       string
	Publisher   string
	Snippet     string
	PublishedAt time.Time
}

// ArticleUpdate carries the output of article generation and validation.
type ArticleUpdate struct {
	SEOTitle          string
	SEODescription    string
	Body              string
	PrimaryKeyword    string
	SecondaryKeywords datatypes.JSON
	QualityStatus     string
	QualityNotes      string
}

type ListIncidentsOptions struct {
	Limit         int
	Offset        int
	State         string
	QualityStatus string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var (
		inc        Incident
		facts      []byte
		secondary  []byte
		enrichedAt *time.Time
	)
	if err := row.Scan(
		&inc.IncidentID,
		&inc.IncidentUUID,
		&inc.Slug,
		&inc.Headline,
		&inc.Summary,
		&inc.City,
		&inc.State,
		&inc.Country,
		&inc.OccurredAt,
		&inc.DedupeKey,
		&facts,
		&inc.SEOTitle,
		&inc.SEODescription,
		&inc.ArticleBody,
		&inc.ArticleQualityStatus,
		&inc.ArticleQualityNotes,
		&inc.PrimaryKeyword,
		&secondary,
		&enrichedAt,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(facts) > 0 {
		inc.ExtractedFacts = datatypes.JSON(facts)
	}
	if len(secondary) > 0 {
		inc.SecondaryKeywords = datatypes.JSON(secondary)
	}
	inc.EnrichedAt = enrichedAt
	return &inc, nil
}

func (p *Pool) findIncident(ctx context.Context, where string, arg any) (*Incident, error) {
	q := `SELECT` + incidentColumns + `
FROM crash.incidents i
WHERE ` + where + `
LIMIT 1`
	inc, err := scanIncident(p.QueryRow(ctx, q, arg))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inc, nil
}

// FindIncidentByDedupeKey returns ErrNotFound when no incident has the key.
func (p *Pool) FindIncidentByDedupeKey(ctx context.Context, dedupeKey string) (*Incident, error) {
	key := strings.TrimSpace(dedupeKey)
	if key == "" {
		return nil, fmt.Errorf("dedupe key is required")
	}
	inc, err := p.findIncident(ctx, "i.dedupe_key = $1", key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find incident by dedupe key: %w", err)
	}
	return inc, err
}

func (p *Pool) FindIncidentBySlug(ctx context.Context, slug string) (*Incident, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, fmt.Errorf("slug is required")
	}
	inc, err := p.findIncident(ctx, "i.slug = $1", trimmed)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find incident by slug: %w", err)
	}
	return inc, err
}

func (p *Pool) GetIncident(ctx context.Context, incidentID int64) (*Incident, error) {
	if incidentID <= 0 {
		return nil, fmt.Errorf("incident id must be > 0")
	}
	inc, err := p.findIncident(ctx, "i.incident_id = $1", incidentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get incident %d: %w", incidentID, err)
	}
	return inc, err
}

func (p *Pool) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := p.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM crash.incidents WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug exists: %w", err)
	}
	return exists, nil
}

func (p *Pool) SourceURLExists(ctx context.Context, incidentID int64, url string) (bool, error) {
	var exists bool
	err := p.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM crash.incident_sources
	WHERE incident_id = $1
	  AND url = $2
)`, incidentID, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check source url exists: %w", err)
	}
	return exists, nil
}

// CreateIncidentWithSource inserts the incident and its first source in one
// transaction. A unique violation on either insert yields ErrDuplicate.
func (p *Pool) CreateIncidentWithSource(ctx context.Context, in NewIncident, src NewSource, now time.Time) (*Incident, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.DedupeKey) == "" {
		return nil, fmt.Errorf("slug and dedupe key are required")
	}
	if strings.TrimSpace(in.Headline) == "" {
		return nil, fmt.Errorf("headline is required")
	}
	country := strings.TrimSpace(in.Country)
	if country == "" {
		country = "US"
	}
	now = now.UTC()

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inc, err := scanIncident(tx.QueryRow(ctx, `
WITH inserted AS (
	INSERT INTO crash.incidents (
		slug,
		headline,
		summary,
		city,
		state,
		country,
		occurred_at,
		dedupe_key,
		created_at,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	RETURNING *
)
SELECT`+incidentColumns+`
FROM inserted i`,
		strings.TrimSpace(in.Slug),
		strings.TrimSpace(in.Headline),
		nullableText(in.Summary),
		nullableText(in.City),
		nullableText(strings.ToUpper(in.State)),
		country,
		in.OccurredAt.UTC(),
		in.DedupeKey,
		now,
	))
	if err != nil {
		if _, ok := IsUniqueViolation(err); ok {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert incident: %w", err)
	}

	if _, err := insertSource(ctx, tx, inc.IncidentID, src, now); err != nil {
		if _, ok := IsUniqueViolation(err); ok {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if _, ok := IsUniqueViolation(err); ok {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return inc, nil
}

// CreateSource attaches a source to an existing incident. It reports false
// when the incident already had a source with that URL.
func (p *Pool) CreateSource(ctx context.Context, incidentID int64, src NewSource, now time.Time) (bool, error) {
	tag, err := p.Exec(ctx, insertSourceSQL, sourceArgs(incidentID, src, now.UTC())...)
	if err != nil {
		return false, fmt.Errorf("insert incident source: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const insertSourceSQL = `
INSERT INTO crash.incident_sources (
	incident_id,
	source_type,
	url,
	title,
	publisher,
	snippet,
	published_at,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (incident_id, url) DO NOTHING`

func insertSource(ctx context.Context, tx Tx, incidentID int64, src NewSource, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, insertSourceSQL, sourceArgs(incidentID, src, now)...)
	if err != nil {
		return false, fmt.Errorf("insert incident source: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func sourceArgs(incidentID int64, src NewSource, now time.Time) []any {
	sourceType := strings.TrimSpace(src.SourceType)
	if sourceType == "" {
		sourceType = "rss"
	}
	publishedAt := src.PublishedAt.UTC()
	if src.PublishedAt.IsZero() {
		publishedAt = now
	}
	return []any{
		incidentID,
		sourceType,
		strings.TrimSpace(src.URL),
		strings.TrimSpace(src.Title),
		nullableText(src.Publisher),
		nullableText(src.Snippet),
		publishedAt,
		now,
	}
}

func (p *Pool) ListSources(ctx context.Context, incidentID int64) ([]IncidentSource, error) {
	rows, err := p.Query(ctx, `
SELECT
	incident_source_id,
	incident_id,
	source_type,
	url,
	title,
	publisher,
	snippet,
	published_at,
	created_at
FROM crash.incident_sources
WHERE incident_id = $1
ORDER BY published_at ASC, incident_source_id ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query incident sources: %w", err)
	}
	defer rows.Close()

	sources := make([]IncidentSource, 0, 4)
	for rows.Next() {
		var src IncidentSource
		if err := rows.Scan(
			&src.IncidentSourceID,
			&src.IncidentID,
			&src.SourceType,
			&src.URL,
			&src.Title,
			&src.Publisher,
			&src.Snippet,
			&src.PublishedAt,
			&src.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan incident source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident sources: %w", err)
	}
	return sources, nil
}

func (p *Pool) UpdateFacts(ctx context.Context, incidentID int64, facts datatypes.JSON, now time.Time) error {
	tag, err := p.Exec(ctx, `
UPDATE crash.incidents
SET
	extracted_facts = $2::jsonb,
	updated_at = $3
WHERE incident_id = $1`, incidentID, string(facts), now.UTC())
	if err != nil {
		return fmt.Errorf("update extracted facts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Pool) UpdateArticle(ctx context.Context, incidentID int64, article ArticleUpdate, now time.Time) error {
	var secondary any
	if len(article.SecondaryKeywords) > 0 {
		secondary = string(article.SecondaryKeywords)
	}
	tag, err := p.Exec(ctx, `
UPDATE crash.incidents
SET
	seo_title = $2,
	seo_description = $3,
	article_body = $4,
	primary_keyword = $5,
	secondary_keywords = $6::jsonb,
	article_quality_status = $7::crash.article_quality_status,
	article_quality_notes = $8,
	enriched_at = $9,
	updated_at = $9
WHERE incident_id = $1`,
		incidentID,
		nullableText(article.SEOTitle),
		nullableText(article.SEODescription),
		nullableText(article.Body),
		nullableText(article.PrimaryKeyword),
		secondary,
		qualityOrDefault(article.QualityStatus),
		nullableText(article.QualityNotes),
		now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateQuality records a validation outcome without touching the article.
func (p *Pool) UpdateQuality(ctx context.Context, incidentID int64, status, notes string, now time.Time) error {
	tag, err := p.Exec(ctx, `
UPDATE crash.incidents
SET
	article_quality_status = $2::crash.article_quality_status,
	article_quality_notes = $3,
	updated_at = $4
WHERE incident_id = $1`, incidentID, qualityOrDefault(status), nullableText(notes), now.UTC())
	if err != nil {
		return fmt.Errorf("update article quality: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const missingArticlePredicate = `(i.article_body IS NULL OR i.article_body = '' OR i.article_quality_status = 'FAILED')`

// ListIncidentsMissingArticle pages by incident id: pass the last id of the
// previous page as afterID.
func (p *Pool) ListIncidentsMissingArticle(ctx context.Context, afterID int64, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := p.Query(ctx, `SELECT`+incidentColumns+`
FROM crash.incidents i
WHERE `+missingArticlePredicate+`
  AND i.incident_id > $1
ORDER BY i.incident_id ASC
LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query incidents missing article: %w", err)
	}
	return collectIncidents(rows)
}

func (p *Pool) CountIncidentsMissingArticle(ctx context.Context) (int64, error) {
	var count int64
	if err := p.QueryRow(ctx, `SELECT COUNT(*) FROM crash.incidents i WHERE `+missingArticlePredicate).Scan(&count); err != nil {
		return 0, fmt.Errorf("count incidents missing article: %w", err)
	}
	return count, nil
}

// ListIncidents returns newest incidents first for the read API.
func (p *Pool) ListIncidents(ctx context.Context, opts ListIncidentsOptions) ([]Incident, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	argPos := 1
	if state := strings.ToUpper(strings.TrimSpace(opts.State)); state != "" {
		where = append(where, fmt.Sprintf("i.state = $%d", argPos))
		args = append(args, state)
		argPos++
	}
	if quality := strings.TrimSpace(opts.QualityStatus); quality != "" {
		where = append(where, fmt.Sprintf("i.article_quality_status = $%d::crash.article_quality_status", argPos))
		args = append(args, quality)
		argPos++
	}

	q := `SELECT` + incidentColumns + `
FROM crash.incidents i`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, "\n  AND ")
	}
	q += fmt.Sprintf("\nORDER BY i.occurred_at DESC, i.incident_id DESC\nLIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	return collectIncidents(rows)
}

func collectIncidents(rows *Rows) ([]Incident, error) {
	defer rows.Close()

	out := make([]Incident, 0, 16)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

func qualityOrDefault(status string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(status))
	if trimmed == "" {
		return "OK"
	}
	return trimmed
}

func nullableText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
