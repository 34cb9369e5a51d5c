package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"CR_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"CR_DB_MAX_CONNS" default:"8"`

	FeedsFile        string        `envconfig:"FEEDS_FILE" default:"feeds.yaml"`
	FeedTimeout      time.Duration `envconfig:"FEED_TIMEOUT" default:"20s"`
	FeedUserAgent    string        `envconfig:"FEED_USER_AGENT" default:"CrashReportsBot/1.0 (+https://crashreports.example)"`
	IngestLanguages  string        `envconfig:"INGEST_LANGUAGES" default:""`
	DefaultCountry   string        `envconfig:"DEFAULT_COUNTRY" default:"US"`
	IngestCron       string        `envconfig:"INGEST_CRON" default:"*/30 * * * *"`
	BackfillCron     string        `envconfig:"BACKFILL_CRON" default:"15 3 * * *"`
	ScheduleTimezone string        `envconfig:"SCHEDULE_TIMEZONE" default:"UTC"`

	TextGenAPIKey   string        `envconfig:"OPENAI_API_KEY" default:""`
	TextGenEndpoint string        `envconfig:"TEXTGEN_ENDPOINT" default:"https://api.openai.com/v1"`
	TextGenModel    string        `envconfig:"TEXTGEN_MODEL" default:"gpt-4o-mini"`
	TextGenTimeout  time.Duration `envconfig:"TEXTGEN_TIMEOUT" default:"90s"`

	EnrichFetchSourceText bool          `envconfig:"ENRICH_FETCH_SOURCE_TEXT" default:"false"`
	BackfillBatchSize     int           `envconfig:"BACKFILL_BATCH_SIZE" default:"25"`
	BackfillMaxRetries    int           `envconfig:"BACKFILL_MAX_RETRIES" default:"3"`
	BackfillDelay         time.Duration `envconfig:"BACKFILL_DELAY" default:"2s"`

	RedisURL      string `envconfig:"REDIS_URL" default:""`
	QueueKey      string `envconfig:"ENRICH_QUEUE_KEY" default:"crashreports:enrich:jobs"`
	QueueCapacity int    `envconfig:"ENRICH_QUEUE_CAPACITY" default:"256"`

	NATSURL     string `envconfig:"NATS_URL" default:""`
	NATSSubject string `envconfig:"NATS_SUBJECT_PREFIX" default:"crashreports"`

	AdminUser          string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPasswordHash  string `envconfig:"ADMIN_PASSWORD_HASH" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("CR_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CR_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("CR_DB_MIN_CONNS (%d) cannot exceed CR_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("FEED_TIMEOUT must be > 0")
	}
	if c.TextGenTimeout <= 0 {
		return fmt.Errorf("TEXTGEN_TIMEOUT must be > 0")
	}
	if c.BackfillBatchSize < 1 {
		return fmt.Errorf("BACKFILL_BATCH_SIZE must be >= 1")
	}
	if c.BackfillMaxRetries < 1 {
		return fmt.Errorf("BACKFILL_MAX_RETRIES must be >= 1")
	}
	if c.BackfillDelay < 0 {
		return fmt.Errorf("BACKFILL_DELAY must be >= 0")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("ENRICH_QUEUE_CAPACITY must be >= 1")
	}
	if len(strings.TrimSpace(c.DefaultCountry)) == 0 {
		return fmt.Errorf("DEFAULT_COUNTRY is required")
	}
	if strings.TrimSpace(c.AdminUser) == "" {
		return fmt.Errorf("ADMIN_USER is required")
	}
	return nil
}

// TextGenConfigured reports whether enrichment can call the text-generation service.
func (c *Config) TextGenConfigured() bool {
	return c != nil && strings.TrimSpace(c.TextGenAPIKey) != ""
}

// IngestLanguageList returns the de-duplicated INGEST_LANGUAGES entries.
func (c *Config) IngestLanguageList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.IngestLanguages, strings.ToLower)
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins, nil)
}

func splitList(raw string, transform func(string) string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if transform != nil {
			value = transform(value)
		}
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
