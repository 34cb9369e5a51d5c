// Package dedupe derives the identity key that collapses repeated coverage
// of one crash into a single incident.
//
// The key hashes the full normalized headline, so two outlets describing the
// same crash in different words produce different keys. Only case,
// punctuation and spacing differences are folded together.
package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"horse.fit/crashreports/internal/incident"
)

const dateLayout = "2006-01-02"

var (
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	spacePattern       = regexp.MustCompile(`\s+`)
)

// MakeIncidentKey returns sha1("headline|YYYY-MM-DD|city-state") as hex.
func MakeIncidentKey(c incident.Candidate) string {
	material := NormalizeHeadline(c.Headline) + "|" + DateKey(c) + "|" + locationKey(c)
	sum := sha1.Sum([]byte(material))
	return hex.EncodeToString(sum[:])
}

// NormalizeHeadline lowercases, turns punctuation runs into spaces and
// collapses whitespace.
func NormalizeHeadline(headline string) string {
	normalized := strings.ToLower(headline)
	normalized = punctuationPattern.ReplaceAllString(normalized, " ")
	normalized = spacePattern.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// DateKey is the UTC calendar day of the candidate.
func DateKey(c incident.Candidate) string {
	return c.OccurredAt.UTC().Format(dateLayout)
}

func locationKey(c incident.Candidate) string {
	return strings.ToLower(strings.TrimSpace(c.City) + "-" + strings.TrimSpace(c.State))
}

// CompletenessScore ranks candidates sharing a key; richer records win.
func CompletenessScore(c incident.Candidate) int {
	score := 0
	if strings.TrimSpace(c.City) != "" {
		score += 3
	}
	if strings.TrimSpace(c.State) != "" {
		score += 2
	}
	if strings.TrimSpace(c.Snippet) != "" {
		score++
	}
	if len(c.Headline) > 50 {
		score++
	}
	if strings.TrimSpace(c.Publisher) != "" {
		score++
	}
	return score
}

// DedupeCandidates keeps the most complete candidate per key. Output order
// follows the first appearance of each key; ties keep the earlier candidate.
func DedupeCandidates(candidates []incident.Candidate) []incident.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	order := make([]string, 0, len(candidates))
	best := make(map[string]incident.Candidate, len(candidates))
	for _, c := range candidates {
		key := MakeIncidentKey(c)
		current, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = c
			continue
		}
		if CompletenessScore(c) > CompletenessScore(current) {
			best[key] = c
		}
	}

	out := make([]incident.Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
