package cli

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvLoaderLoadsRequestedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CRASHREPORTS_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvFileOverrideVar, "")
	t.Setenv("CRASHREPORTS_TEST_VALUE", "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, ".env", "")
	if err := fs.Parse([]string{"--env", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	loaded, err := loader.Load()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if loaded != path {
		t.Fatalf("unexpected loaded path: got %q want %q", loaded, path)
	}
	if got := os.Getenv("CRASHREPORTS_TEST_VALUE"); got != "from-file" {
		t.Fatalf("unexpected env value: %q", got)
	}
}

func TestEnvLoaderCandidatesPreferOverride(t *testing.T) {
	t.Setenv(EnvFileOverrideVar, "/etc/crashreports/prod.env")

	loader := &EnvLoader{defaultPath: ".env"}
	got := loader.candidates("config/dev.env")
	want := []string{"/etc/crashreports/prod.env", "config/dev.env", "dev.env", ".env"}
	if len(got) != len(want) {
		t.Fatalf("unexpected candidates: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestEnvLoaderMissingFileFails(t *testing.T) {
	t.Setenv(EnvFileOverrideVar, "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, filepath.Join(t.TempDir(), "missing.env"), "")
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := loader.Load(); err == nil {
		t.Fatalf("expected missing env file to fail")
	}
}
