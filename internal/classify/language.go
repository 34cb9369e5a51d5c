package classify

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// LanguageGate admits text whose detected ISO 639-1 language is allowed.
// Text too short to classify is admitted.
type LanguageGate struct {
	allowed map[string]struct{}
	detect  func(string) string
}

// NewLanguageGate returns nil when no usable language codes are given.
func NewLanguageGate(codes []string) *LanguageGate {
	allowed := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if normalized := NormalizeLanguageCode(code); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	return &LanguageGate{allowed: allowed, detect: DetectISO6391}
}

func (g *LanguageGate) Allow(text string) bool {
	if g == nil {
		return true
	}
	code := g.detect(text)
	if code == "" {
		return true
	}
	_, ok := g.allowed[code]
	return ok
}

// DetectISO6391 returns "" when the sample has fewer than six letters or
// lingua cannot decide.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// NormalizeLanguageCode reduces a tag such as "en_US" or "EN-us" to "en".
func NormalizeLanguageCode(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	tag = strings.ReplaceAll(tag, "_", "-")
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		tag = tag[:dash]
	}
	if len(tag) < 2 || len(tag) > 3 {
		return ""
	}
	for _, r := range tag {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return tag
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.English, lingua.Spanish, lingua.French, lingua.German, lingua.Portuguese, lingua.Italian, lingua.Chinese, lingua.Vietnamese).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
