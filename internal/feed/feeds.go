package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one configured news feed.
type Source struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type sourcesFile struct {
	Feeds []Source `yaml:"feeds"`
}

// DefaultSources are Google News searches for US traffic-accident coverage.
var DefaultSources = []Source{
	{Name: "google-news-car-crash", URL: "https://news.google.com/rss/search?q=%22car+crash%22+when:1d&hl=en-US&gl=US&ceid=US:en"},
	{Name: "google-news-fatal-crash", URL: "https://news.google.com/rss/search?q=%22fatal+crash%22+when:1d&hl=en-US&gl=US&ceid=US:en"},
	{Name: "google-news-pedestrian-struck", URL: "https://news.google.com/rss/search?q=%22pedestrian+struck%22+when:1d&hl=en-US&gl=US&ceid=US:en"},
	{Name: "google-news-hit-and-run", URL: "https://news.google.com/rss/search?q=%22hit-and-run%22+crash+when:1d&hl=en-US&gl=US&ceid=US:en"},
	{Name: "google-news-truck-accident", URL: "https://news.google.com/rss/search?q=%22truck+accident%22+when:1d&hl=en-US&gl=US&ceid=US:en"},
	{Name: "google-news-motorcycle-crash", URL: "https://news.google.com/rss/search?q=%22motorcycle+crash%22+when:1d&hl=en-US&gl=US&ceid=US:en"},
}

// LoadSources reads a YAML feed list. A missing file falls back to
// DefaultSources; a present but invalid file is an error.
func LoadSources(path string) ([]Source, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return enabledOnly(DefaultSources), nil
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return enabledOnly(DefaultSources), nil
		}
		return nil, fmt.Errorf("read feeds file %s: %w", trimmed, err)
	}
	return ParseSources(raw)
}

// ParseSources decodes the feeds YAML document and drops disabled entries.
func ParseSources(raw []byte) ([]Source, error) {
	var doc sourcesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode feeds yaml: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Feeds))
	out := make([]Source, 0, len(doc.Feeds))
	for i, src := range doc.Feeds {
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		if src.URL == "" {
			return nil, fmt.Errorf("feeds[%d].url is required", i)
		}
		if !strings.HasPrefix(src.URL, "http://") && !strings.HasPrefix(src.URL, "https://") {
			return nil, fmt.Errorf("feeds[%d].url must be http(s): %s", i, src.URL)
		}
		if src.Name == "" {
			src.Name = src.URL
		}
		if !src.IsEnabled() {
			continue
		}
		if _, dup := seen[src.URL]; dup {
			continue
		}
		seen[src.URL] = struct{}{}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("feeds file lists no enabled feeds")
	}
	return out, nil
}

// URLs extracts the URL of every source, preserving order.
func URLs(sources []Source) []string {
	urls := make([]string, 0, len(sources))
	for _, src := range sources {
		urls = append(urls, src.URL)
	}
	return urls
}

func enabledOnly(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.IsEnabled() {
			out = append(out, src)
		}
	}
	return out
}
