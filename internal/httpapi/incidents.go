package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/crashreports/internal/classify"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/incident"
	"horse.fit/crashreports/internal/reader"
)

const fallbackSummaryChars = 320

type incidentListItem struct {
	IncidentID    int64      `json:"incident_id"`
	Slug          string     `json:"slug"`
	Headline      string     `json:"headline"`
	City          *string    `json:"city"`
	State         *string    `json:"state"`
	Country       string     `json:"country"`
	Location      string     `json:"location"`
	OccurredAt    time.Time  `json:"occurred_at"`
	SEOTitle      *string    `json:"seo_title"`
	Description   string     `json:"description"`
	HasArticle    bool       `json:"has_article"`
	QualityStatus string     `json:"quality_status"`
	EnrichedAt    *time.Time `json:"enriched_at"`
}

type incidentSourceItem struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Publisher   *string   `json:"publisher"`
	PublishedAt time.Time `json:"published_at"`
}

type incidentDetail struct {
	incidentListItem
	Summary           string                  `json:"summary"`
	ArticleBody       *string                 `json:"article_body"`
	ExtractedFacts    *incident.AccidentFacts `json:"extracted_facts"`
	PrimaryKeyword    *string                 `json:"primary_keyword"`
	SecondaryKeywords []string                `json:"secondary_keywords"`
	Sources           []incidentSourceItem    `json:"sources"`
	Pending           bool                    `json:"enrichment_pending"`
}

func (s *Server) handleIncidents(c echo.Context) error {
	page, fieldErrors := parsePage(c)
	if fieldErrors != nil {
		return failValidation(c, fieldErrors)
	}

	state := strings.ToUpper(strings.TrimSpace(c.QueryParam("state")))
	if state != "" && !classify.IsStateCode(state) {
		return failValidation(c, map[string]string{"state": "must be a two-letter US state code"})
	}

	rows, err := s.store.ListIncidents(c.Request().Context(), db.ListIncidentsOptions{
		Limit:  page.PageSize,
		Offset: (page.Page - 1) * page.PageSize,
		State:  state,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query incidents failed")
		return internalError(c, "Failed to load incidents")
	}

	items := make([]incidentListItem, 0, len(rows))
	for i := range rows {
		items = append(items, buildListItem(&rows[i]))
	}
	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":      page.Page,
			"page_size": page.PageSize,
		},
		"filters": map[string]any{
			"state": state,
		},
	})
}

func (s *Server) handleIncidentDetail(c echo.Context) error {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		return failValidation(c, map[string]string{"slug": "is required"})
	}

	inc, err := s.store.FindIncidentBySlug(c.Request().Context(), slug)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return failNotFound(c, "Incident not found")
		}
		s.logger.Error().Err(err).Str("slug", slug).Msg("query incident failed")
		return internalError(c, "Failed to load incident")
	}

	sources, err := s.store.ListSources(c.Request().Context(), inc.IncidentID)
	if err != nil {
		s.logger.Error().Err(err).Str("slug", slug).Msg("query incident sources failed")
		return internalError(c, "Failed to load incident sources")
	}

	return success(c, buildDetail(inc, sources))
}

func buildListItem(inc *db.Incident) incidentListItem {
	return incidentListItem{
		IncidentID:    inc.IncidentID,
		Slug:          inc.Slug,
		Headline:      inc.Headline,
		City:          inc.City,
		State:         inc.State,
		Country:       inc.Country,
		Location:      incident.FormatLocation(derefString(inc.City), derefString(inc.State)),
		OccurredAt:    inc.OccurredAt.UTC(),
		SEOTitle:      inc.SEOTitle,
		Description:   description(inc),
		HasArticle:    inc.HasArticle(),
		QualityStatus: inc.ArticleQualityStatus,
		EnrichedAt:    inc.EnrichedAt,
	}
}

func buildDetail(inc *db.Incident, sources []db.IncidentSource) incidentDetail {
	detail := incidentDetail{
		incidentListItem:  buildListItem(inc),
		Summary:           fallbackSummary(inc, sources),
		PrimaryKeyword:    inc.PrimaryKeyword,
		SecondaryKeywords: []string{},
		Sources:           make([]incidentSourceItem, 0, len(sources)),
		Pending:           !inc.HasArticle(),
	}
	if inc.HasArticle() {
		detail.ArticleBody = inc.ArticleBody
	}
	if len(inc.ExtractedFacts) > 0 && string(inc.ExtractedFacts) != "null" {
		var facts incident.AccidentFacts
		if err := json.Unmarshal(inc.ExtractedFacts, &facts); err == nil {
			facts.Normalize()
			detail.ExtractedFacts = &facts
		}
	}
	if len(inc.SecondaryKeywords) > 0 {
		var keywords []string
		if err := json.Unmarshal(inc.SecondaryKeywords, &keywords); err == nil && keywords != nil {
			detail.SecondaryKeywords = keywords
		}
	}
	for _, src := range sources {
		detail.Sources = append(detail.Sources, incidentSourceItem{
			URL:         src.URL,
			Title:       src.Title,
			Publisher:   src.Publisher,
			PublishedAt: src.PublishedAt.UTC(),
		})
	}
	return detail
}

func description(inc *db.Incident) string {
	if inc.SEODescription != nil && strings.TrimSpace(*inc.SEODescription) != "" {
		return strings.TrimSpace(*inc.SEODescription)
	}
	text, _ := reader.TruncateText(fallbackText(inc), 170)
	return text
}

// fallbackSummary is shown while enrichment is pending or has failed. It is
// built only from what ingestion stored.
func fallbackSummary(inc *db.Incident, sources []db.IncidentSource) string {
	text := fallbackText(inc)
	if len(sources) > 1 {
		text += fmt.Sprintf(" %d news sources have reported on this crash.", len(sources))
	}
	summary, _ := reader.TruncateText(text, fallbackSummaryChars)
	return summary
}

func fallbackText(inc *db.Incident) string {
	if summary := strings.TrimSpace(derefString(inc.Summary)); summary != "" {
		return summary
	}
	date := inc.OccurredAt.UTC().Format("January 2, 2006")
	location := incident.FormatLocation(derefString(inc.City), derefString(inc.State))
	if location == "" {
		return fmt.Sprintf("%s. Reported on %s.", strings.TrimSpace(inc.Headline), date)
	}
	return fmt.Sprintf("%s. Reported in %s on %s.", strings.TrimSpace(inc.Headline), location, date)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
