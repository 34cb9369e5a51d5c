package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/crashreports/internal/auth"
	"horse.fit/crashreports/internal/classify"
	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/config"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/feed"
	"horse.fit/crashreports/internal/ingest"
	"horse.fit/crashreports/internal/logging"
	"horse.fit/crashreports/internal/metrics"
	"horse.fit/crashreports/internal/notify"
	"horse.fit/crashreports/internal/queue"
	"horse.fit/crashreports/internal/reader"
)

// loadRuntime loads .env, config and logger. A non-zero code means the
// command should exit with it.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), 1
	}
	return cfg, logger, 0
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// openQueue uses Redis when REDIS_URL is set. Otherwise jobs live in an
// in-process queue and inProcess is true; the caller must run a worker.
func openQueue(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (q queue.Queue, inProcess bool, err error) {
	if cfg.RedisURL == "" {
		logger.Info().Int("capacity", cfg.QueueCapacity).Msg("using in-process enrichment queue")
		return queue.NewMemoryQueue(cfg.QueueCapacity), true, nil
	}
	redisQueue, err := queue.NewRedisQueue(ctx, cfg.RedisURL, cfg.QueueKey)
	if err != nil {
		return nil, false, err
	}
	logger.Info().Str("key", cfg.QueueKey).Msg("using redis enrichment queue")
	return redisQueue, false, nil
}

// openNotifier falls back to a no-op notifier when NATS is not configured
// or unreachable.
func openNotifier(cfg *config.Config, logger zerolog.Logger) notify.Notifier {
	if cfg.NATSURL == "" {
		return notify.Nop{}
	}
	n, err := notify.NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable; incident events disabled")
		return notify.Nop{}
	}
	return n
}

func newGenerator(cfg *config.Config) *enrich.OpenAIClient {
	return enrich.NewOpenAIClient(cfg.TextGenEndpoint, cfg.TextGenModel, cfg.TextGenAPIKey, cfg.TextGenTimeout)
}

func newEnricher(pool *db.Pool, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *enrich.Enricher {
	opts := []enrich.Option{enrich.WithMetrics(m)}
	if cfg.EnrichFetchSourceText {
		opts = append(opts, enrich.WithPageText(reader.NewPageFetcher(reader.Options{
			Timeout:   cfg.FeedTimeout,
			UserAgent: cfg.FeedUserAgent,
		})))
	}
	return enrich.NewEnricher(pool, newGenerator(cfg), logger.With().Str("component", "enrich").Logger(), opts...)
}

func backfillOptions(batchSize, maxRetries int, delay time.Duration) enrich.BackfillOptions {
	return enrich.BackfillOptions{
		BatchSize:  batchSize,
		MaxRetries: maxRetries,
		Delay:      delay,
	}
}

func newNormalizer(cfg *config.Config) *classify.Normalizer {
	return classify.NewNormalizer(
		classify.NewPhraseClassifier(),
		classify.WithLanguageGate(classify.NewLanguageGate(cfg.IngestLanguageList())),
		classify.WithDefaultCountry(cfg.DefaultCountry),
	)
}

func newFetcher(cfg *config.Config) *feed.Fetcher {
	return feed.NewFetcher(feed.Options{
		Timeout:   cfg.FeedTimeout,
		UserAgent: cfg.FeedUserAgent,
	})
}

func adminCredentials(cfg *config.Config) auth.AdminCredentials {
	return auth.AdminCredentials{
		Username:     cfg.AdminUser,
		PasswordHash: cfg.AdminPasswordHash,
	}
}

// ingestPass runs one full feed pass with the configured feed list.
type ingestPass struct {
	cfg         *config.Config
	coordinator *ingest.Coordinator
	fetcher     *feed.Fetcher
	normalizer  *classify.Normalizer
}

func newIngestPass(cfg *config.Config, pool *db.Pool, q queue.Queue, n notify.Notifier, m *metrics.Metrics, logger zerolog.Logger) *ingestPass {
	return &ingestPass{
		cfg: cfg,
		coordinator: ingest.NewCoordinator(pool, logger.With().Str("component", "ingest").Logger(),
			ingest.WithQueue(q),
			ingest.WithNotifier(n),
			ingest.WithMetrics(m),
		),
		fetcher:    newFetcher(cfg),
		normalizer: newNormalizer(cfg),
	}
}

func (p *ingestPass) Run(ctx context.Context, triggeredBy string, feedURLs []string) (ingest.RunResult, error) {
	if len(feedURLs) == 0 {
		sources, err := feed.LoadSources(p.cfg.FeedsFile)
		if err != nil {
			return ingest.RunResult{}, err
		}
		feedURLs = feed.URLs(sources)
	}
	return p.coordinator.Run(ctx, p.fetcher, p.normalizer, ingest.RunOptions{
		FeedURLs:    feedURLs,
		TriggeredBy: triggeredBy,
	})
}

func closeQuietly(logger zerolog.Logger, name string, closer interface{ Close() error }) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Str("resource", name).Msg("close failed")
	}
}
