package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func testArticleInput() ArticleInput {
	return ArticleInput{
		Headline:   "Two-Vehicle Collision on I-25 near Downtown Denver Leaves Two Drivers Hospitalized Overnight",
		OccurredAt: time.Date(2024, 1, 15, 15, 45, 0, 0, time.UTC),
		Location:   "Denver, CO",
	}
}

func TestParseArticleSplitsMetadataBlock(t *testing.T) {
	t.Parallel()

	raw := metaBlock + completeArticle("")
	article := ParseArticle(raw, testArticleInput())

	if article.MetaFallback {
		t.Fatalf("expected metadata block to be used")
	}
	if article.Meta.SEOTitle != "Two-vehicle crash on I-25 in Denver" {
		t.Fatalf("unexpected seo title: %q", article.Meta.SEOTitle)
	}
	if article.Meta.PrimaryKeyword != "denver car crash" {
		t.Fatalf("unexpected primary keyword: %q", article.Meta.PrimaryKeyword)
	}
	if len(article.Meta.SecondaryKeywords) != 1 {
		t.Fatalf("expected blank keywords dropped, got %v", article.Meta.SecondaryKeywords)
	}
	if !strings.HasPrefix(article.Body, "## Key Facts") {
		t.Fatalf("expected body to start at first heading, got %q", article.Body[:40])
	}
	if strings.Contains(article.Body, "```") {
		t.Fatalf("expected metadata fence removed from body")
	}
}

func TestParseArticleFallsBackWithoutMetadata(t *testing.T) {
	t.Parallel()

	in := testArticleInput()
	body := completeArticle("")
	article := ParseArticle(body, in)

	if !article.MetaFallback {
		t.Fatalf("expected fallback metadata")
	}
	if article.Body != strings.TrimSpace(body) {
		t.Fatalf("expected whole response to be the body")
	}
	if got := utf8.RuneCountInString(article.Meta.SEOTitle); got > 70 {
		t.Fatalf("seo title longer than 70: %d", got)
	}
	if !strings.HasPrefix(in.Headline, article.Meta.SEOTitle) {
		t.Fatalf("expected seo title to be truncated headline, got %q", article.Meta.SEOTitle)
	}
	if got := utf8.RuneCountInString(article.Meta.MetaDescription); got > 170 || got == 0 {
		t.Fatalf("unexpected meta description length %d", got)
	}
	if !strings.Contains(article.Meta.MetaDescription, "Denver, CO") {
		t.Fatalf("expected location in fallback description: %q", article.Meta.MetaDescription)
	}
}

func TestParseArticleUnparseableMetadataKeepsWholeResponse(t *testing.T) {
	t.Parallel()

	raw := "```json\n{not json}\n```\n\n" + completeArticle("")
	article := ParseArticle(raw, testArticleInput())
	if !article.MetaFallback {
		t.Fatalf("expected fallback for broken metadata")
	}
	if article.Body != strings.TrimSpace(raw) {
		t.Fatalf("expected entire response as body")
	}
}

func TestGenerateArticleSkipsWithoutCredential(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{configured: false, respond: func(ChatRequest) (string, error) {
		return completeArticle(""), nil
	}}
	if article := GenerateArticle(context.Background(), gen, testArticleInput(), zerolog.Nop()); article != nil {
		t.Fatalf("expected nil article without credential")
	}
	if gen.articleCalls != 0 {
		t.Fatalf("expected no generator calls, got %d", gen.articleCalls)
	}
}

func TestGenerateArticleTransportFailureReturnsNil(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{configured: true, respond: func(ChatRequest) (string, error) {
		return "", errors.New("timeout")
	}}
	if article := GenerateArticle(context.Background(), gen, testArticleInput(), zerolog.Nop()); article != nil {
		t.Fatalf("expected nil article on transport failure")
	}
}

func TestBuildArticlePromptCapsSources(t *testing.T) {
	t.Parallel()

	in := testArticleInput()
	for i := 0; i < 8; i++ {
		in.Sources = append(in.Sources, SourceText{Title: "Source title", Snippet: "snippet"})
	}
	prompt := buildArticlePrompt(in)
	if strings.Count(prompt, "Source title") != maxPromptSources {
		t.Fatalf("expected %d sources in prompt, got %d", maxPromptSources, strings.Count(prompt, "Source title"))
	}
	if !strings.Contains(prompt, "Date: 2024-01-15") || !strings.Contains(prompt, "Location: Denver, CO") {
		t.Fatalf("prompt missing date or location:\n%s", prompt)
	}
}
