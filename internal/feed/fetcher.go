package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "CrashReportsBot/1.0 (+https://crashreports.example)"

	maxFeedBodyBytes = 5 * 1024 * 1024
	sourceSeparator  = " - "
)

// Item is one entry of an RSS channel.
type Item struct {
	Title       string
	Link        string
	PubDate     string
	Description string
	Source      string
}

// Result aggregates a multi-feed fetch: every item that could be read plus
// one message per feed that failed.
type Result struct {
	Items  []Item
	Errors []string
}

// FetchError reports a feed endpoint that answered with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feed %s returned status %d", e.URL, e.StatusCode)
}

// Options configures a Fetcher.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewFetcher(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(timeout)
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Fetch downloads one feed and returns its items.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	if f == nil || f.client == nil {
		return nil, fmt.Errorf("feed fetcher is not initialized")
	}
	target := strings.TrimSpace(feedURL)
	if target == "" {
		return nil, fmt.Errorf("feed url is required")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	items, err := Parse(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", target, err)
	}
	return items, nil
}

// FetchAll fetches every feed concurrently. A failing feed is reported in
// Result.Errors and never prevents the other feeds from being read.
func (f *Fetcher) FetchAll(ctx context.Context, feedURLs []string) Result {
	perFeed := make([][]Item, len(feedURLs))
	perFeedErr := make([]error, len(feedURLs))

	var g errgroup.Group
	for i, feedURL := range feedURLs {
		g.Go(func() error {
			items, err := f.Fetch(ctx, feedURL)
			if err != nil {
				perFeedErr[i] = err
				return nil
			}
			perFeed[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var result Result
	for i := range feedURLs {
		if perFeedErr[i] != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", feedURLs[i], perFeedErr[i]))
			continue
		}
		result.Items = append(result.Items, perFeed[i]...)
	}
	return result
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	PubDate     string    `xml:"pubDate"`
	Description string    `xml:"description"`
	Source      rssSource `xml:"source"`
}

type rssSource struct {
	URL  string `xml:"url,attr"`
	Name string `xml:",chardata"`
}

// Parse decodes an RSS 2.0 document. Titles of the form "Headline - Outlet"
// are split on the last separator; otherwise the <source> element names the
// outlet when present.
func Parse(r io.Reader) ([]Item, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.CharsetReader = charset.NewReaderLabel

	var doc rssDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rss: %w", err)
	}

	items := make([]Item, 0, len(doc.Channel.Items))
	for _, raw := range doc.Channel.Items {
		title, source := SplitTitleSource(raw.Title)
		if source == "" {
			source = strings.TrimSpace(raw.Source.Name)
		}
		items = append(items, Item{
			Title:       title,
			Link:        strings.TrimSpace(raw.Link),
			PubDate:     strings.TrimSpace(raw.PubDate),
			Description: strings.TrimSpace(raw.Description),
			Source:      source,
		})
	}
	return items, nil
}

// SplitTitleSource splits "Headline - Outlet" on the last " - ".
func SplitTitleSource(rawTitle string) (title string, source string) {
	trimmed := strings.TrimSpace(rawTitle)
	idx := strings.LastIndex(trimmed, sourceSeparator)
	if idx <= 0 {
		return trimmed, ""
	}
	source = strings.TrimSpace(trimmed[idx+len(sourceSeparator):])
	if source == "" {
		return trimmed, ""
	}
	return strings.TrimSpace(trimmed[:idx]), source
}
