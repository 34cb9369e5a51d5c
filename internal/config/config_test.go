package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:        "postgres://localhost/crashreports",
		DBMinConns:         1,
		DBMaxConns:         4,
		FeedTimeout:        20 * time.Second,
		TextGenTimeout:     90 * time.Second,
		BackfillBatchSize:  25,
		BackfillMaxRetries: 3,
		QueueCapacity:      16,
		DefaultCountry:     "US",
		AdminUser:          "admin",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsInvertedConnBounds(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DBMinConns = 9
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected min conns > max conns to fail")
	}
}

func TestValidateRejectsZeroBackfillRetries(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.BackfillMaxRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected BACKFILL_MAX_RETRIES=0 to fail")
	}
}

func TestIngestLanguageListNormalizesAndDedupes(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.IngestLanguages = " EN, es ,en,, "
	got := cfg.IngestLanguageList()
	if len(got) != 2 || got[0] != "en" || got[1] != "es" {
		t.Fatalf("unexpected language list: %v", got)
	}
}

func TestTextGenConfigured(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if cfg.TextGenConfigured() {
		t.Fatalf("did not expect text generation to be configured without a key")
	}
	cfg.TextGenAPIKey = "sk-test"
	if !cfg.TextGenConfigured() {
		t.Fatalf("expected text generation to be configured with a key")
	}
}
