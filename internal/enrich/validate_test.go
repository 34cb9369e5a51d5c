package enrich

import (
	"strings"
	"testing"

	"horse.fit/crashreports/internal/incident"
)

func TestValidateArticleCompleteBodyPasses(t *testing.T) {
	t.Parallel()

	v := ValidateArticle(completeArticle(""))
	if len(v.Errors) != 0 || len(v.Warnings) != 0 {
		t.Fatalf("expected clean validation, got %+v", v)
	}
	if v.Status() != incident.QualityOK || v.Notes() != "" {
		t.Fatalf("unexpected status/notes: %s %q", v.Status(), v.Notes())
	}
}

func TestValidateArticleMissingHeading(t *testing.T) {
	t.Parallel()

	v := ValidateArticle(articleWithout("Legal Disclaimer and Sources"))
	if v.Valid() {
		t.Fatalf("expected validation errors")
	}
	found := false
	for _, msg := range v.Errors {
		if strings.Contains(msg, "Legal Disclaimer and Sources") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing heading in errors, got %v", v.Errors)
	}
	if v.Status() != incident.QualityFailed {
		t.Fatalf("expected FAILED, got %s", v.Status())
	}
}

func TestValidateArticleGuaranteePhraseFails(t *testing.T) {
	t.Parallel()

	v := ValidateArticle(completeArticle("Call now for guaranteed compensation."))
	if v.Valid() {
		t.Fatalf("expected guarantee language to fail validation")
	}
	if !strings.Contains(strings.Join(v.Errors, "\n"), "guaranteed compensation") {
		t.Fatalf("expected phrase named in errors, got %v", v.Errors)
	}
}

func TestValidateArticleSensationalPhraseWarns(t *testing.T) {
	t.Parallel()

	v := ValidateArticle(completeArticle("Witnesses described a horrific crash near the exit ramp."))
	if !v.Valid() {
		t.Fatalf("expected no errors, got %v", v.Errors)
	}
	if len(v.Warnings) == 0 {
		t.Fatalf("expected warnings for sensational language")
	}
	if v.Status() != incident.QualityNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW, got %s", v.Status())
	}
	if !strings.HasPrefix(v.Notes(), "Warnings: ") {
		t.Fatalf("unexpected notes: %q", v.Notes())
	}
}

func TestValidateArticleShortAndThinSections(t *testing.T) {
	t.Parallel()

	v := ValidateArticle("## Key Facts\n\nToo thin.\n\n## Traffic Impact\n")
	joined := strings.Join(v.Errors, "\n")
	for _, want := range []string{
		"too short",
		"Section has too little content: Key Facts",
		"Section has too little content: Traffic Impact",
		"Missing required heading: What We Know About the Crash",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in errors, got:\n%s", want, joined)
		}
	}
}

func TestMissingHeadingsMatchesLooseFormatting(t *testing.T) {
	t.Parallel()

	body := strings.ReplaceAll(completeArticle(""), "## Key Facts", "### **key facts**")
	if missing := MissingHeadings(body); len(missing) != 0 {
		t.Fatalf("expected formatting variants to match, missing %v", missing)
	}
	if missing := MissingHeadings("no headings"); len(missing) != len(RequiredHeadings) {
		t.Fatalf("expected every heading missing, got %v", missing)
	}
}
