package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/crashreports/internal/incident"
)

const (
	maxSEOTitleRunes        = 70
	maxMetaDescriptionRunes = 170
	maxPromptSources        = 5
)

// RequiredHeadings are the article sections, in publication order.
var RequiredHeadings = []string{
	"Key Facts",
	"What We Know About the Crash",
	"People Involved and Injuries",
	"Investigation and Possible Contributing Factors",
	"Traffic Impact",
	"What to Do If You Were Involved in This Crash",
	"How to Get the Official Crash Report",
	"Legal Disclaimer and Sources",
}

var jsonFencePattern = regexp.MustCompile("(?s)```json[ \t]*\\r?\\n?(.*?)```")

// ArticleMeta is the machine-readable block that precedes the markdown body.
type ArticleMeta struct {
	SEOTitle          string   `json:"seoTitle"`
	MetaDescription   string   `json:"metaDescription"`
	PrimaryKeyword    string   `json:"primaryKeyword"`
	SecondaryKeywords []string `json:"secondaryKeywords"`
}

type GeneratedArticle struct {
	Meta ArticleMeta
	Body string
	// MetaFallback is set when the metadata block was missing or unreadable.
	MetaFallback bool
}

type ArticleInput struct {
	Headline   string
	OccurredAt time.Time
	Location   string
	Summary    string
	Facts      *incident.AccidentFacts
	Sources    []SourceText
}

const articleSystemPrompt = `You write factual, calm incident summaries about road traffic crashes for a public information site.
Use only the facts provided. Do not speculate about fault. Do not promise legal outcomes or compensation.
Output format:
1. A fenced code block tagged json containing an object with keys seoTitle (max 70 characters),
   metaDescription (max 170 characters), primaryKeyword, secondaryKeywords (array of strings).
2. After the block, a markdown article using these exact level-2 headings in this order:
%s`

// GenerateArticle returns nil when the generator is unconfigured or the
// call fails. A response without a usable metadata block is still accepted
// as the body with synthesized metadata.
func GenerateArticle(ctx context.Context, gen Generator, in ArticleInput, logger zerolog.Logger) *GeneratedArticle {
	if gen == nil || !gen.Configured() {
		return nil
	}

	raw, err := gen.Complete(ctx, ChatRequest{
		System:      fmt.Sprintf(articleSystemPrompt, headingList()),
		User:        buildArticlePrompt(in),
		Temperature: 0.4,
	})
	if err != nil {
		logger.Warn().Err(err).Str("headline", in.Headline).Msg("article generation call failed")
		return nil
	}

	article := ParseArticle(raw, in)
	if strings.TrimSpace(article.Body) == "" {
		logger.Warn().Str("headline", in.Headline).Msg("article generation returned an empty body")
		return nil
	}
	return article
}

func headingList() string {
	var b strings.Builder
	for _, heading := range RequiredHeadings {
		b.WriteString("   ## ")
		b.WriteString(heading)
		b.WriteString("\n")
	}
	return b.String()
}

func buildArticlePrompt(in ArticleInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Headline: %s\n", strings.TrimSpace(in.Headline))
	fmt.Fprintf(&b, "Date: %s\n", in.OccurredAt.UTC().Format("2006-01-02"))
	location := strings.TrimSpace(in.Location)
	if location == "" {
		location = "Unknown"
	}
	fmt.Fprintf(&b, "Location: %s\n", location)
	if summary := strings.TrimSpace(in.Summary); summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", summary)
	}

	if in.Facts != nil {
		if encoded, err := json.MarshalIndent(in.Facts, "", "  "); err == nil {
			b.WriteString("\nExtracted facts (JSON):\n")
			b.Write(encoded)
			b.WriteString("\n")
		}
	}

	sources := in.Sources
	if len(sources) > maxPromptSources {
		sources = sources[:maxPromptSources]
	}
	if len(sources) > 0 {
		b.WriteString("\nSources:\n")
		for i, src := range sources {
			fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(src.Title))
			if snippet := strings.TrimSpace(src.Snippet); snippet != "" {
				b.WriteString(" - ")
				b.WriteString(snippet)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ParseArticle splits a response on its first ```json block.
func ParseArticle(raw string, in ArticleInput) *GeneratedArticle {
	text := strings.TrimSpace(raw)
	loc := jsonFencePattern.FindStringSubmatchIndex(text)
	if loc != nil {
		var meta ArticleMeta
		block := text[loc[2]:loc[3]]
		if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &meta); err == nil {
			body := strings.TrimSpace(text[:loc[0]] + "\n" + text[loc[1]:])
			fillMeta(&meta, in)
			return &GeneratedArticle{Meta: meta, Body: body}
		}
	}

	meta := ArticleMeta{}
	fillMeta(&meta, in)
	return &GeneratedArticle{Meta: meta, Body: text, MetaFallback: true}
}

func fillMeta(meta *ArticleMeta, in ArticleInput) {
	meta.SEOTitle = strings.TrimSpace(meta.SEOTitle)
	if meta.SEOTitle == "" {
		meta.SEOTitle = in.Headline
	}
	meta.SEOTitle = truncateRunes(meta.SEOTitle, maxSEOTitleRunes)

	meta.MetaDescription = strings.TrimSpace(meta.MetaDescription)
	if meta.MetaDescription == "" {
		meta.MetaDescription = fallbackDescription(in)
	}
	meta.MetaDescription = truncateRunes(meta.MetaDescription, maxMetaDescriptionRunes)

	meta.PrimaryKeyword = strings.TrimSpace(meta.PrimaryKeyword)
	kept := make([]string, 0, len(meta.SecondaryKeywords))
	for _, kw := range meta.SecondaryKeywords {
		if trimmed := strings.TrimSpace(kw); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	meta.SecondaryKeywords = kept
}

func fallbackDescription(in ArticleInput) string {
	date := in.OccurredAt.UTC().Format("January 2, 2006")
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return fmt.Sprintf("What we know about the traffic crash reported on %s, including injuries, investigation updates, and how to get the official crash report.", date)
	}
	return fmt.Sprintf("What we know about the traffic crash in %s on %s, including injuries, investigation updates, and how to get the official crash report.", location, date)
}

func truncateRunes(value string, limit int) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:limit]))
}
