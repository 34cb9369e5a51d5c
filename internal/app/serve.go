package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/httpapi"
	"horse.fit/crashreports/internal/metrics"
	"horse.fit/crashreports/internal/queue"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := signalContext()
	defer cancel()

	q, inProcess, err := openQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to open queue")
		fmt.Fprintf(os.Stderr, "Failed to open enrichment queue: %v\n", err)
		return 1
	}
	defer closeQuietly(logger, "queue", q)

	notifier := openNotifier(cfg, logger)
	defer closeQuietly(logger, "notifier", notifier)

	m := metrics.New()
	group, groupCtx := errgroup.WithContext(ctx)

	var apiQueue queue.Queue = q
	if inProcess {
		enricher := newEnricher(pool, cfg, logger, m)
		if enricher.Configured() {
			worker := enrich.NewWorker(q, enricher, logger.With().Str("component", "worker").Logger(), enrich.WorkerOptions{
				OnlyIfMissing: true,
				Notifier:      notifier,
			})
			group.Go(func() error {
				return worker.Run(groupCtx)
			})
		} else {
			logger.Warn().Msg("OPENAI_API_KEY is not set; regenerate endpoint disabled")
			apiQueue = nil
		}
	}

	srv := httpapi.NewServer(pool, apiQueue, m, logger, httpapi.Options{
		Host:               *host,
		Port:               *port,
		ReadTimeout:        *readTimeout,
		WriteTimeout:       *writeTimeout,
		ShutdownTimeout:    *shutdownTimeout,
		CORSAllowedOrigins: cfg.CORSAllowedOriginsList(),
		Admin:              adminCredentials(cfg),
	})
	group.Go(func() error {
		return srv.Start(groupCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
