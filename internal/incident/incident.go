// Package incident holds the value types shared by the ingestion and
// enrichment stages: feed-derived candidates, extracted accident facts, and
// article quality states.
package incident

import (
	"strings"
	"time"
)

// DefaultCountry is stored when no country can be derived from a feed item.
const DefaultCountry = "US"

// SourceTypeRSS tags sources discovered through RSS news feeds.
const SourceTypeRSS = "rss"

// Candidate is one normalized feed item that looks like a traffic accident.
// Headline and OccurredAt are always set; the remaining fields may be empty.
type Candidate struct {
	Headline   string
	Link       string
	Publisher  string
	OccurredAt time.Time
	Snippet    string
	City       string
	State      string
	Country    string
}

// LocationLabel renders "City, ST" from whichever parts are present.
func (c Candidate) LocationLabel() string {
	return FormatLocation(c.City, c.State)
}

// FormatLocation joins city and state the way pages and prompts display them.
func FormatLocation(city, state string) string {
	city = strings.TrimSpace(city)
	state = strings.TrimSpace(state)
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

type QualityStatus string

const (
	QualityOK          QualityStatus = "OK"
	QualityNeedsReview QualityStatus = "NEEDS_REVIEW"
	QualityFailed      QualityStatus = "FAILED"
)

func (s QualityStatus) Valid() bool {
	switch s {
	case QualityOK, QualityNeedsReview, QualityFailed:
		return true
	default:
		return false
	}
}

// ParseQualityStatus accepts any casing and "needs-review" style separators.
func ParseQualityStatus(raw string) (QualityStatus, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	status := QualityStatus(normalized)
	return status, status.Valid()
}
