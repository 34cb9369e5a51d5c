package enrich

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"horse.fit/crashreports/internal/incident"
)

const (
	MinArticleLength  = 800
	MinSectionContent = 20
)

var disallowedPhrases = []string{
	"guaranteed compensation",
	"guarantee compensation",
	"guaranteed settlement",
	"guaranteed payout",
	"guaranteed result",
	"guaranteed outcome",
	"you will win your case",
	"you will win",
	"you are entitled to compensation",
	"100% guaranteed",
	"we guarantee",
}

var sensationalPhrases = []string{
	"horrific crash",
	"horrific accident",
	"horrifying",
	"bloodbath",
	"carnage",
	"gruesome",
	"mangled",
	"shocking crash",
	"nightmare crash",
	"death trap",
}

var markdownHeadingPattern = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.+?)\s*#*\s*$`)

// Validation is the outcome of checking one article body.
type Validation struct {
	Errors   []string
	Warnings []string
}

func (v Validation) Valid() bool {
	return len(v.Errors) == 0
}

// Status maps errors to FAILED and warnings to NEEDS_REVIEW.
func (v Validation) Status() incident.QualityStatus {
	switch {
	case len(v.Errors) > 0:
		return incident.QualityFailed
	case len(v.Warnings) > 0:
		return incident.QualityNeedsReview
	default:
		return incident.QualityOK
	}
}

// Notes renders the findings for the admin triage view. Empty when clean.
func (v Validation) Notes() string {
	parts := make([]string, 0, 2)
	if len(v.Errors) > 0 {
		parts = append(parts, "Errors: "+strings.Join(v.Errors, "; "))
	}
	if len(v.Warnings) > 0 {
		parts = append(parts, "Warnings: "+strings.Join(v.Warnings, "; "))
	}
	return strings.Join(parts, "\n")
}

type section struct {
	heading string
	content string
}

// ValidateArticle checks length, required sections, section content, and
// phrasing of a markdown article.
func ValidateArticle(body string) Validation {
	var v Validation
	trimmed := strings.TrimSpace(body)

	if n := utf8.RuneCountInString(trimmed); n < MinArticleLength {
		v.Errors = append(v.Errors, fmt.Sprintf("Article is too short (%d characters, minimum %d)", n, MinArticleLength))
	}

	sections := splitSections(trimmed)
	byHeading := make(map[string]section, len(sections))
	for _, s := range sections {
		key := headingKey(s.heading)
		if _, seen := byHeading[key]; !seen {
			byHeading[key] = s
		}
	}
	for _, heading := range RequiredHeadings {
		s, ok := byHeading[headingKey(heading)]
		if !ok {
			v.Errors = append(v.Errors, "Missing required heading: "+heading)
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(s.content)) < MinSectionContent {
			v.Errors = append(v.Errors, "Section has too little content: "+heading)
		}
	}

	lowered := strings.ToLower(trimmed)
	for _, phrase := range disallowedPhrases {
		if strings.Contains(lowered, phrase) {
			v.Errors = append(v.Errors, fmt.Sprintf("Disallowed guarantee language: %q", phrase))
		}
	}
	for _, phrase := range sensationalPhrases {
		if strings.Contains(lowered, phrase) {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Sensational language: %q", phrase))
		}
	}
	return v
}

// MissingHeadings lists required headings absent from body, in order.
func MissingHeadings(body string) []string {
	present := make(map[string]struct{})
	for _, s := range splitSections(body) {
		present[headingKey(s.heading)] = struct{}{}
	}
	missing := make([]string, 0)
	for _, heading := range RequiredHeadings {
		if _, ok := present[headingKey(heading)]; !ok {
			missing = append(missing, heading)
		}
	}
	return missing
}

func splitSections(body string) []section {
	var (
		sections []section
		current  *section
		content  strings.Builder
	)
	flush := func() {
		if current != nil {
			current.content = content.String()
			sections = append(sections, *current)
		}
		content.Reset()
	}

	for _, line := range strings.Split(body, "\n") {
		if m := markdownHeadingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &section{heading: m[1]}
			continue
		}
		if current != nil {
			content.WriteString(line)
			content.WriteString("\n")
		}
	}
	flush()
	return sections
}

func headingKey(heading string) string {
	key := strings.ToLower(strings.TrimSpace(heading))
	key = strings.Trim(key, "*_: ")
	return strings.Join(strings.Fields(key), " ")
}
