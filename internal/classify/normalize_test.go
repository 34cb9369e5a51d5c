package classify

import (
	"testing"
	"time"

	"horse.fit/crashreports/internal/feed"
)

func TestNormalizeBuildsCandidates(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	n := NewNormalizer(NewPhraseClassifier(), WithClock(func() time.Time { return fixed }))

	items := []feed.Item{
		{
			Title:       "  Two-Vehicle Collision on I-25 near Downtown Denver ",
			Link:        "https://a.example/1",
			PubDate:     "Mon, 15 Jan 2024 15:45:00 GMT",
			Description: "<p>Two cars collided &amp; traffic backed up.</p>",
			Source:      "Denver Post",
		},
		{Title: "Stock market crash", Link: "https://b.example/2"},
		{Title: "Fatal crash on highway", Link: ""},
		{Title: "Pedestrian struck in Phoenix", Link: "https://c.example/3", PubDate: "not a date"},
	}

	candidates, stats := n.Normalize(items)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if stats.Seen != 4 || stats.Accepted != 2 || stats.NotAccident != 1 || stats.Incomplete != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	first := candidates[0]
	if first.Headline != "Two-Vehicle Collision on I-25 near Downtown Denver" {
		t.Fatalf("unexpected headline: %q", first.Headline)
	}
	if first.Snippet != "Two cars collided & traffic backed up." {
		t.Fatalf("unexpected snippet: %q", first.Snippet)
	}
	if !first.OccurredAt.Equal(time.Date(2024, 1, 15, 15, 45, 0, 0, time.UTC)) {
		t.Fatalf("unexpected occurredAt: %s", first.OccurredAt)
	}
	if first.City != "Denver" || first.State != "CO" || first.Country != "US" || first.Publisher != "Denver Post" {
		t.Fatalf("unexpected candidate: %+v", first)
	}

	if !candidates[1].OccurredAt.Equal(fixed) {
		t.Fatalf("expected unparseable pubDate to fall back to clock, got %s", candidates[1].OccurredAt)
	}
}

func TestNormalizeParsesLooseDates(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	got := n.parsePubDate("2024-01-15 15:45:00")
	if !got.Equal(time.Date(2024, 1, 15, 15, 45, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed date: %s", got)
	}
}

type stubClassifier struct{}

func (stubClassifier) IsAccident(string) bool { return true }
func (stubClassifier) Locate(string) Location { return Location{State: "TX"} }

func TestNormalizeUsesInjectedClassifier(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(stubClassifier{}, WithDefaultCountry("ca"))
	candidates, _ := n.Normalize([]feed.Item{{Title: "anything", Link: "https://x.example"}})
	if len(candidates) != 1 || candidates[0].State != "TX" || candidates[0].Country != "CA" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestLanguageGate(t *testing.T) {
	t.Parallel()

	if NewLanguageGate(nil) != nil {
		t.Fatalf("expected nil gate without languages")
	}

	gate := NewLanguageGate([]string{"EN-us"})
	gate.detect = func(text string) string {
		if text == "hola" {
			return "es"
		}
		if text == "x" {
			return ""
		}
		return "en"
	}
	if !gate.Allow("car crash") {
		t.Fatalf("expected english text to pass")
	}
	if gate.Allow("hola") {
		t.Fatalf("expected spanish text to be rejected")
	}
	if !gate.Allow("x") {
		t.Fatalf("expected undetectable text to pass")
	}
}

func TestNormalizeLanguageCode(t *testing.T) {
	t.Parallel()

	if got := NormalizeLanguageCode(" EN_us "); got != "en" {
		t.Fatalf("unexpected code: %q", got)
	}
	if got := NormalizeLanguageCode("e1"); got != "" {
		t.Fatalf("expected invalid code to be empty, got %q", got)
	}
}
