package app

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"horse.fit/crashreports/internal/auth"
)

func TestRunExitCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []string
		want int
	}{
		{name: "no args", args: nil, want: 2},
		{name: "help", args: []string{"help"}, want: 0},
		{name: "unknown", args: []string{"publish"}, want: 2},
		{name: "bad flag", args: []string{"serve", "--nope"}, want: 2},
		{name: "bad port", args: []string{"serve", "--port", "70000"}, want: 2},
		{name: "command help", args: []string{"ingest", "-h"}, want: 0},
		{name: "validate needs a mode", args: []string{"validate-article"}, want: 2},
		{name: "update needs slug", args: []string{"validate-article", "--file", "a.md", "--update"}, want: 2},
		{name: "too many workers", args: []string{"enrich", "--workers", "99"}, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Run(tc.args); got != tc.want {
				t.Fatalf("Run(%v) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}

func TestIngestEnrichesByDefault(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := newIngestFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !*flags.enrichNow {
		t.Fatalf("expected in-process enrichment to be on by default")
	}

	fs = flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags = newIngestFlags(fs)
	if err := fs.Parse([]string{"--enrich=false"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *flags.enrichNow {
		t.Fatalf("expected --enrich=false to turn enrichment off")
	}
}

func TestHashPasswordFromStdin(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := hashPassword(nil, strings.NewReader("hunter22\n"), &out); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	hash := strings.TrimSpace(out.String())
	if !auth.VerifyPassword("hunter22", hash) {
		t.Fatalf("printed hash does not verify: %q", hash)
	}

	out.Reset()
	if code := hashPassword(nil, strings.NewReader("   \n"), &out); code != 2 {
		t.Fatalf("expected exit 2 for blank password, got %d", code)
	}
}

func TestValidateArticleFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "short.md"), "## Overview\nToo short.")
	mustWriteFile(t, filepath.Join(root, "notes.json"), `{}`)
	mustWriteFile(t, filepath.Join(root, ".draft.md"), "hidden")
	mustWriteFile(t, filepath.Join(root, "nested", "other.markdown"), "# Title")

	files, err := collectArticleFiles(root, true)
	if err != nil {
		t.Fatalf("collectArticleFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 article files, got %d (%v)", len(files), files)
	}

	flat, err := collectArticleFiles(root, false)
	if err != nil {
		t.Fatalf("collectArticleFiles failed: %v", err)
	}
	if len(flat) != 1 {
		t.Fatalf("expected 1 top-level article file, got %d (%v)", len(flat), flat)
	}

	var out bytes.Buffer
	result := validateArticleFiles(append(files, filepath.Join(root, "missing.md")), &out)
	if result.Scanned != 3 || result.Failed != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains(out.String(), "Missing required heading") {
		t.Fatalf("expected heading errors in output, got %q", out.String())
	}

	if code := Run([]string{"validate-article", "--file", filepath.Join(root, "short.md")}); code != 1 {
		t.Fatalf("expected exit 1 for a failing article, got %d", code)
	}
}

func TestResolveSpec(t *testing.T) {
	t.Parallel()

	if got := resolveSpec("", "*/30 * * * *"); got != "*/30 * * * *" {
		t.Fatalf("expected config spec, got %q", got)
	}
	if got := resolveSpec("0 6 * * *", "*/30 * * * *"); got != "0 6 * * *" {
		t.Fatalf("expected flag spec, got %q", got)
	}
	if got := resolveSpec("-", "*/30 * * * *"); got != "" {
		t.Fatalf("expected disabled spec, got %q", got)
	}
}

func TestSplitFeeds(t *testing.T) {
	t.Parallel()

	got := splitFeeds(" https://a.example/rss , ,https://b.example/rss")
	if len(got) != 2 || got[0] != "https://a.example/rss" || got[1] != "https://b.example/rss" {
		t.Fatalf("unexpected feeds %v", got)
	}
	if got := splitFeeds(""); len(got) != 0 {
		t.Fatalf("expected no feeds, got %v", got)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
