package dedupe

import (
	"testing"
	"time"

	"horse.fit/crashreports/internal/incident"
)

func denverCandidate() incident.Candidate {
	return incident.Candidate{
		Headline:   "Two-Vehicle Collision on I-25 near Downtown Denver",
		Link:       "https://a.example/1",
		OccurredAt: time.Date(2024, 1, 15, 15, 45, 0, 0, time.UTC),
		City:       "Denver",
		State:      "CO",
	}
}

func TestMakeIncidentKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	c := denverCandidate()
	first := MakeIncidentKey(c)
	if first != MakeIncidentKey(c) {
		t.Fatalf("expected identical keys for identical input")
	}
	if len(first) != 40 {
		t.Fatalf("expected 40-char sha1 hex, got %d", len(first))
	}
}

func TestMakeIncidentKeyIgnoresCasePunctuationAndSpacing(t *testing.T) {
	t.Parallel()

	a := denverCandidate()
	b := a
	b.Headline = "  Two Vehicle   Collision On I-25 Near Downtown Denver!"
	b.Link = "https://b.example/2"
	b.OccurredAt = time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)

	if MakeIncidentKey(a) != MakeIncidentKey(b) {
		t.Fatalf("expected same key, normalized %q vs %q", NormalizeHeadline(a.Headline), NormalizeHeadline(b.Headline))
	}
}

func TestMakeIncidentKeyChangesWithDateOrPlace(t *testing.T) {
	t.Parallel()

	base := denverCandidate()
	key := MakeIncidentKey(base)

	nextDay := base
	nextDay.OccurredAt = base.OccurredAt.Add(24 * time.Hour)
	if MakeIncidentKey(nextDay) == key {
		t.Fatalf("expected date change to alter key")
	}

	otherCity := base
	otherCity.City = "Aurora"
	if MakeIncidentKey(otherCity) == key {
		t.Fatalf("expected city change to alter key")
	}

	otherState := base
	otherState.State = "NM"
	if MakeIncidentKey(otherState) == key {
		t.Fatalf("expected state change to alter key")
	}
}

func TestMakeIncidentKeyUsesUTCDay(t *testing.T) {
	t.Parallel()

	mountain := time.FixedZone("MST", -7*3600)
	a := denverCandidate()
	a.OccurredAt = time.Date(2024, 1, 15, 20, 0, 0, 0, mountain)
	if got := DateKey(a); got != "2024-01-16" {
		t.Fatalf("expected UTC date, got %s", got)
	}
}

func TestDedupeCandidatesKeepsMostComplete(t *testing.T) {
	t.Parallel()

	sparse := denverCandidate()
	rich := sparse
	rich.Link = "https://b.example/2"
	rich.Snippet = "Two cars collided."
	rich.Publisher = "Denver Post"

	other := denverCandidate()
	other.Headline = "Pedestrian struck on Colfax"

	out := DedupeCandidates([]incident.Candidate{sparse, other, rich})
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if out[0].Link != "https://b.example/2" {
		t.Fatalf("expected richer candidate to win, got %+v", out[0])
	}
	if out[1].Headline != "Pedestrian struck on Colfax" {
		t.Fatalf("expected first-seen order to be preserved, got %+v", out[1])
	}
}

func TestDedupeCandidatesTieKeepsFirst(t *testing.T) {
	t.Parallel()

	first := denverCandidate()
	second := first
	second.Link = "https://b.example/2"

	out := DedupeCandidates([]incident.Candidate{first, second})
	if len(out) != 1 || out[0].Link != first.Link {
		t.Fatalf("expected first candidate on tie, got %+v", out)
	}
}

func TestCompletenessScore(t *testing.T) {
	t.Parallel()

	c := incident.Candidate{
		Headline:  "A headline that is comfortably longer than fifty characters total",
		City:      "Denver",
		State:     "CO",
		Snippet:   "snippet",
		Publisher: "KDVR",
	}
	if got := CompletenessScore(c); got != 8 {
		t.Fatalf("expected max score 8, got %d", got)
	}
	if got := CompletenessScore(incident.Candidate{Headline: "short"}); got != 0 {
		t.Fatalf("expected zero score, got %d", got)
	}
}
