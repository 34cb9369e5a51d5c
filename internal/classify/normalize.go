package classify

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"horse.fit/crashreports/internal/feed"
	"horse.fit/crashreports/internal/globaltime"
	"horse.fit/crashreports/internal/incident"
)

var (
	htmlTagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
}

// Normalizer turns raw feed items into incident candidates, keeping only the
// items its Classifier accepts.
type Normalizer struct {
	classifier     Classifier
	gate           *LanguageGate
	defaultCountry string
	now            func() time.Time
}

type NormalizerOption func(*Normalizer)

// WithLanguageGate drops items whose text is not in one of the gate's languages.
func WithLanguageGate(gate *LanguageGate) NormalizerOption {
	return func(n *Normalizer) {
		n.gate = gate
	}
}

func WithDefaultCountry(country string) NormalizerOption {
	return func(n *Normalizer) {
		if trimmed := strings.ToUpper(strings.TrimSpace(country)); trimmed != "" {
			n.defaultCountry = trimmed
		}
	}
}

// WithClock replaces the time source used when a pubDate cannot be parsed.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

func NewNormalizer(classifier Classifier, opts ...NormalizerOption) *Normalizer {
	if classifier == nil {
		classifier = NewPhraseClassifier()
	}
	n := &Normalizer{
		classifier:     classifier,
		defaultCountry: incident.DefaultCountry,
		now:            globaltime.UTC,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Stats counts why items were dropped during normalization.
type Stats struct {
	Seen        int
	Accepted    int
	Incomplete  int
	NotAccident int
	WrongLang   int
}

// Normalize filters and converts items in input order.
func (n *Normalizer) Normalize(items []feed.Item) ([]incident.Candidate, Stats) {
	stats := Stats{Seen: len(items)}
	out := make([]incident.Candidate, 0, len(items))
	for _, item := range items {
		headline := collapseSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if headline == "" || link == "" {
			stats.Incomplete++
			continue
		}

		snippet := StripHTML(item.Description)
		text := headline + " " + snippet
		if !n.classifier.IsAccident(text) {
			stats.NotAccident++
			continue
		}
		if n.gate != nil && !n.gate.Allow(text) {
			stats.WrongLang++
			continue
		}

		loc := n.classifier.Locate(text)
		out = append(out, incident.Candidate{
			Headline:   headline,
			Link:       link,
			Publisher:  strings.TrimSpace(item.Source),
			OccurredAt: n.parsePubDate(item.PubDate),
			Snippet:    snippet,
			City:       loc.City,
			State:      loc.State,
			Country:    n.defaultCountry,
		})
		stats.Accepted++
	}
	return out, stats
}

func (n *Normalizer) parsePubDate(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		for _, layout := range pubDateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC()
			}
		}
		if parsed, err := dateparse.ParseIn(trimmed, time.UTC); err == nil {
			return parsed.UTC()
		}
	}
	return n.now().UTC()
}

// StripHTML removes markup and entities from a feed description.
func StripHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := htmlTagPattern.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	return collapseSpace(text)
}

func collapseSpace(value string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}
