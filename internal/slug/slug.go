// Package slug builds the human-readable URL identifier of an incident.
package slug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"horse.fit/crashreports/internal/incident"
)

const (
	MaxLength        = 100
	FallbackLocation = "us"

	headlineWords  = 8
	suffixLength   = 6
	maxRandomTries = 5
	maxNumberedTry = 1000
	dateLayout     = "2006-01-02"
)

// ErrExhausted is returned when no free slug was found within the retry budget.
var ErrExhausted = errors.New("slug: no unique candidate found")

// ExistsFunc reports whether a slug is already taken.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Build returns "{city state}-{first eight headline words}-{YYYY-MM-DD}".
func Build(c incident.Candidate) string {
	location := strings.TrimSpace(strings.ToLower(strings.TrimSpace(c.City) + " " + strings.TrimSpace(c.State)))
	if location == "" {
		location = FallbackLocation
	}

	words := strings.Fields(c.Headline)
	if len(words) > headlineWords {
		words = words[:headlineWords]
	}

	raw := location + " " + strings.Join(words, " ") + " " + c.OccurredAt.UTC().Format(dateLayout)
	return truncate(Slugify(raw), MaxLength)
}

// Slugify transliterates to lowercase ASCII and joins alphanumeric runs with "-".
func Slugify(raw string) string {
	ascii, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		ascii = raw
	}
	ascii = strings.ToLower(ascii)

	var b strings.Builder
	b.Grow(len(ascii))
	pendingDash := false
	for _, r := range ascii {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// Unique returns base when free, otherwise base plus a random six-character
// suffix, trying up to five suffixes.
func Unique(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	taken, err := exists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("check slug %q: %w", base, err)
	}
	if !taken {
		return base, nil
	}

	for attempt := 0; attempt < maxRandomTries; attempt++ {
		candidate := WithSuffix(base, randomSuffix())
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for base %q after %d attempts", ErrExhausted, base, maxRandomTries)
}

// UniqueNumbered appends -2, -3, ... until a free slug is found.
func UniqueNumbered(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	taken, err := exists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("check slug %q: %w", base, err)
	}
	if !taken {
		return base, nil
	}

	for n := 2; n <= maxNumberedTry; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := WithSuffix(base, strconv.Itoa(n))
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for base %q", ErrExhausted, base)
}

// WithSuffix appends "-suffix", shortening base so the result fits MaxLength.
func WithSuffix(base, suffix string) string {
	room := MaxLength - len(suffix) - 1
	return truncate(base, room) + "-" + suffix
}

func randomSuffix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:suffixLength]
}

func truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(value) > limit {
		value = value[:limit]
	}
	return strings.Trim(value, "-")
}
