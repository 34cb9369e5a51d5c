package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCleanTextCollapsesWhitespaceAndPreservesParagraphs(t *testing.T) {
	t.Parallel()

	input := "  First   paragraph \n\n Second\tparagraph \r\n\r\nThird line "
	got := CleanText(input)
	want := "First paragraph\n\nSecond paragraph\n\nThird line"
	if got != want {
		t.Fatalf("CleanText mismatch\nwant: %q\ngot:  %q", want, got)
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	got, truncated := TruncateText("abcdefghijklmnopqrstuvwxyz", 10)
	if !truncated {
		t.Fatalf("expected truncated=true")
	}
	if got != "abcdefghi…" {
		t.Fatalf("unexpected truncated text: %q", got)
	}

	full, wasTruncated := TruncateText("short", 10)
	if wasTruncated || full != "short" {
		t.Fatalf("unexpected short text: %q truncated=%v", full, wasTruncated)
	}
}

func TestPageFetcherPlainText(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Police said two vehicles collided.\r\n\r\nOne driver was hospitalized."))
	}))
	defer srv.Close()

	text, err := NewPageFetcher(Options{}).FetchText(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatalf("fetch text: %v", err)
	}
	if text != "Police said two vehicles collided.\n\nOne driver was hospitalized." {
		t.Fatalf("unexpected text: %q", text)
	}
	if !strings.HasPrefix(gotUA, "CrashReportsBot/") {
		t.Fatalf("unexpected user agent: %q", gotUA)
	}
}

func TestPageFetcherClipsLongText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 50)))
	}))
	defer srv.Close()

	text, err := NewPageFetcher(Options{MaxChars: 10}).FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch text: %v", err)
	}
	if len([]rune(text)) != 10 || !strings.HasSuffix(text, "…") {
		t.Fatalf("expected clipped text, got %q", text)
	}
}

func TestPageFetcherRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewPageFetcher(Options{}).FetchText(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 403")
	}
	if _, err := NewPageFetcher(Options{}).FetchText(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
