package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/incident"
	"horse.fit/crashreports/internal/queue"
)

const adminRealm = "crashreports admin"

type adminIncidentItem struct {
	incidentListItem
	QualityNotes *string `json:"quality_notes"`
}

type validationResponse struct {
	Slug          string   `json:"slug"`
	HasArticle    bool     `json:"has_article"`
	Valid         bool     `json:"valid"`
	Status        string   `json:"status"`
	StoredStatus  string   `json:"stored_status"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Notes         string   `json:"notes"`
	MissingBlocks []string `json:"missing_headings"`
}

// requireAdmin guards the admin group with HTTP basic auth. Without
// configured credentials every admin request is refused.
func (s *Server) requireAdmin() echo.MiddlewareFunc {
	basic := middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: adminRealm,
		Validator: func(username, password string, c echo.Context) (bool, error) {
			ok := s.opts.Admin.Verify(username, password)
			if !ok {
				s.logger.Warn().Str("remote_ip", c.RealIP()).Msg("admin authentication failed")
			}
			return ok, nil
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := basic(next)
		return func(c echo.Context) error {
			if !s.opts.Admin.Configured() {
				return fail(c, http.StatusServiceUnavailable, "Admin access is not configured", nil)
			}
			return guarded(c)
		}
	}
}

func (s *Server) handleAdminIncidents(c echo.Context) error {
	page, fieldErrors := parsePage(c)
	if fieldErrors != nil {
		return failValidation(c, fieldErrors)
	}

	quality := ""
	if raw := strings.TrimSpace(c.QueryParam("quality")); raw != "" {
		status, ok := incident.ParseQualityStatus(raw)
		if !ok {
			return failValidation(c, map[string]string{"quality": "must be one of OK, NEEDS_REVIEW, FAILED"})
		}
		quality = string(status)
	}

	rows, err := s.store.ListIncidents(c.Request().Context(), db.ListIncidentsOptions{
		Limit:         page.PageSize,
		Offset:        (page.Page - 1) * page.PageSize,
		QualityStatus: quality,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query admin incidents failed")
		return internalError(c, "Failed to load incidents")
	}

	items := make([]adminIncidentItem, 0, len(rows))
	for i := range rows {
		items = append(items, adminIncidentItem{
			incidentListItem: buildListItem(&rows[i]),
			QualityNotes:     rows[i].ArticleQualityNotes,
		})
	}
	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":      page.Page,
			"page_size": page.PageSize,
		},
		"filters": map[string]any{
			"quality": quality,
		},
	})
}

// handleRegenerate queues a fresh enrichment for an incident. The worker
// overwrites whatever article is stored.
func (s *Server) handleRegenerate(c echo.Context) error {
	if s.queue == nil {
		return fail(c, http.StatusServiceUnavailable, "Enrichment queue is not configured", nil)
	}

	inc, err := s.lookupSlug(c)
	if err != nil || inc == nil {
		return err
	}

	job := queue.NewJob(inc.IncidentID, queue.ReasonRegenerate)
	if err := queue.Offer(c.Request().Context(), s.queue, job); err != nil {
		if errors.Is(err, queue.ErrFull) {
			s.metrics.JobDropped(string(job.Reason))
			return fail(c, http.StatusServiceUnavailable, "Enrichment queue is full, try again later", nil)
		}
		s.metrics.JobEnqueued(string(job.Reason), false)
		s.logger.Error().Err(err).Str("slug", inc.Slug).Msg("enqueue regenerate job failed")
		return internalError(c, "Failed to queue regeneration")
	}
	s.metrics.JobEnqueued(string(job.Reason), true)
	s.logger.Info().Str("slug", inc.Slug).Str("job_id", job.JobID).Msg("regeneration queued")

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"job_id":      job.JobID,
		"incident_id": inc.IncidentID,
		"slug":        inc.Slug,
		"reason":      job.Reason,
	})
}

// handleValidation re-runs the article checks against the stored body
// without touching the stored quality status.
func (s *Server) handleValidation(c echo.Context) error {
	inc, err := s.lookupSlug(c)
	if err != nil || inc == nil {
		return err
	}

	resp := validationResponse{
		Slug:          inc.Slug,
		HasArticle:    inc.HasArticle(),
		StoredStatus:  inc.ArticleQualityStatus,
		Errors:        []string{},
		Warnings:      []string{},
		MissingBlocks: []string{},
	}
	if !inc.HasArticle() {
		resp.Status = string(incident.QualityFailed)
		resp.Errors = append(resp.Errors, "article body is empty")
		resp.Notes = "Errors: article body is empty"
		return success(c, resp)
	}

	result := enrich.ValidateArticle(*inc.ArticleBody)
	resp.Valid = result.Valid()
	resp.Status = string(result.Status())
	resp.Notes = result.Notes()
	if result.Errors != nil {
		resp.Errors = result.Errors
	}
	if result.Warnings != nil {
		resp.Warnings = result.Warnings
	}
	if missing := enrich.MissingHeadings(*inc.ArticleBody); missing != nil {
		resp.MissingBlocks = missing
	}
	return success(c, resp)
}

// lookupSlug writes the error response itself; a nil incident with a nil
// error means the response is already committed.
func (s *Server) lookupSlug(c echo.Context) (*db.Incident, error) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		return nil, failValidation(c, map[string]string{"slug": "is required"})
	}
	inc, err := s.store.FindIncidentBySlug(c.Request().Context(), slug)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, failNotFound(c, "Incident not found")
		}
		s.logger.Error().Err(err).Str("slug", slug).Msg("query incident failed")
		return nil, internalError(c, "Failed to load incident")
	}
	return inc, nil
}

type ingestRunResponse struct {
	RunID              int64      `json:"run_id"`
	RunUUID            string     `json:"run_uuid"`
	TriggeredBy        string     `json:"triggered_by"`
	Status             string     `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at"`
	FeedsFetched       int        `json:"feeds_fetched"`
	FeedErrors         int        `json:"feed_errors"`
	ItemsFetched       int        `json:"items_fetched"`
	CandidatesAccepted int        `json:"candidates_accepted"`
	NewIncidents       int        `json:"new_incidents"`
	UpdatedIncidents   int        `json:"updated_incidents"`
	Skipped            int        `json:"skipped"`
	Errors             int        `json:"errors"`
	ErrorMessage       *string    `json:"error_message"`
}

func buildIngestRunResponse(run *db.IngestRun) ingestRunResponse {
	return ingestRunResponse{
		RunID:              run.RunID,
		RunUUID:            run.IngestRunUUID,
		TriggeredBy:        run.TriggeredBy,
		Status:             run.Status,
		StartedAt:          run.StartedAt.UTC(),
		FinishedAt:         run.FinishedAt,
		FeedsFetched:       run.FeedsFetched,
		FeedErrors:         run.FeedErrors,
		ItemsFetched:       run.ItemsFetched,
		CandidatesAccepted: run.CandidatesAccepted,
		NewIncidents:       run.NewIncidents,
		UpdatedIncidents:   run.UpdatedIncidents,
		Skipped:            run.Skipped,
		Errors:             run.Errors,
		ErrorMessage:       run.ErrorMessage,
	}
}
