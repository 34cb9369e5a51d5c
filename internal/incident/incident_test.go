package incident

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEmptyFactsMarshalsNullsAndArrays(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(EmptyFacts())
	if err != nil {
		t.Fatalf("marshal facts: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal facts: %v", err)
	}

	for _, key := range []string{"primaryLocation", "city", "county", "state", "timeOfCrashApprox", "injuriesCount", "fatalitiesCount", "causeOrAllegations"} {
		value, ok := decoded[key]
		if !ok {
			t.Fatalf("expected key %q to be present", key)
		}
		if value != nil {
			t.Fatalf("expected %q to be null, got %v", key, value)
		}
	}
	for _, key := range []string{"roads", "peopleInvolved", "vehicles", "companiesMentioned", "agenciesInvolved"} {
		value, ok := decoded[key].([]any)
		if !ok {
			t.Fatalf("expected %q to be an array, got %T", key, decoded[key])
		}
		if len(value) != 0 {
			t.Fatalf("expected %q to be empty, got %v", key, value)
		}
	}
	if strings.Contains(string(raw), `"roads":null`) {
		t.Fatalf("roads must never marshal as null: %s", raw)
	}
}

func TestFormatLocation(t *testing.T) {
	t.Parallel()

	cases := map[string][2]string{
		"Denver, CO": {"Denver", "CO"},
		"Denver":     {"Denver", ""},
		"CO":         {"", "CO"},
		"":           {"", ""},
	}
	for want, in := range cases {
		if got := FormatLocation(in[0], in[1]); got != want {
			t.Fatalf("FormatLocation(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestParseQualityStatus(t *testing.T) {
	t.Parallel()

	if status, ok := ParseQualityStatus(" needs-review "); !ok || status != QualityNeedsReview {
		t.Fatalf("unexpected parse result: %q %t", status, ok)
	}
	if _, ok := ParseQualityStatus("published"); ok {
		t.Fatalf("did not expect unknown status to parse")
	}
}
