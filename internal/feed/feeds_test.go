package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSourcesDropsDisabledAndDuplicates(t *testing.T) {
	t.Parallel()

	raw := []byte(`
feeds:
  - name: denver
    url: https://news.example/denver.rss
  - name: denver-again
    url: https://news.example/denver.rss
  - name: paused
    url: https://news.example/paused.rss
    enabled: false
  - url: https://news.example/unnamed.rss
`)
	sources, err := ParseSources(raw)
	if err != nil {
		t.Fatalf("parse sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d (%+v)", len(sources), sources)
	}
	if sources[1].Name != "https://news.example/unnamed.rss" {
		t.Fatalf("expected url to stand in for missing name, got %q", sources[1].Name)
	}
}

func TestParseSourcesRejectsNonHTTP(t *testing.T) {
	t.Parallel()

	if _, err := ParseSources([]byte("feeds:\n  - url: ftp://news.example/feed\n")); err == nil {
		t.Fatalf("expected ftp url to be rejected")
	}
}

func TestLoadSourcesMissingFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	sources, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load sources: %v", err)
	}
	if len(sources) != len(DefaultSources) {
		t.Fatalf("expected default sources, got %d", len(sources))
	}
}

func TestLoadSourcesReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte("feeds:\n  - name: one\n    url: https://news.example/one.rss\n"), 0o644); err != nil {
		t.Fatalf("write feeds file: %v", err)
	}
	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("load sources: %v", err)
	}
	if got := URLs(sources); len(got) != 1 || got[0] != "https://news.example/one.rss" {
		t.Fatalf("unexpected urls: %v", got)
	}
}
