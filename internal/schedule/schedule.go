// Package schedule runs ingest and backfill passes on cron specs.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Task is one scheduled pass. The context is cancelled when the scheduler stops.
type Task func(ctx context.Context) error

type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	logger   zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	names  map[cron.EntryID]string
}

// New builds a scheduler in the named IANA timezone. Empty means UTC.
func New(timezone string, logger zerolog.Logger) (*Scheduler, error) {
	name := strings.TrimSpace(timezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}

	adapter := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		location: loc,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		names:    map[cron.EntryID]string{},
	}, nil
}

// Add registers task under a standard five-field cron spec. A blank spec
// disables the task and is not an error.
func (s *Scheduler) Add(name, spec string, task Task) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		s.logger.Info().Str("task", name).Msg("schedule disabled")
		return nil
	}
	if task == nil {
		return fmt.Errorf("task %s is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.runTask(name, task) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.names[id] = name
	s.logger.Info().Str("task", name).Str("cron", spec).Str("timezone", s.location.String()).Msg("task scheduled")
	return nil
}

func (s *Scheduler) runTask(name string, task Task) {
	started := time.Now()
	s.logger.Info().Str("task", name).Msg("scheduled task started")
	if err := task(s.ctx); err != nil {
		s.logger.Error().Err(err).Str("task", name).Dur("took", time.Since(started)).Msg("scheduled task failed")
		return
	}
	s.logger.Info().Str("task", name).Dur("took", time.Since(started)).Msg("scheduled task finished")
}

// Next reports the next activation per task name.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.names))
	for _, entry := range s.cron.Entries() {
		next := entry.Next
		if next.IsZero() {
			next = entry.Schedule.Next(time.Now().In(s.location))
		}
		out[s.names[entry.ID]] = next
	}
	return out
}

// Run starts the cron loop and blocks until ctx is done. Running tasks see
// their context cancelled and are waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.names)
	s.mu.Unlock()
	if count == 0 {
		return fmt.Errorf("no tasks scheduled")
	}

	s.cron.Start()
	s.logger.Info().Int("tasks", count).Msg("scheduler started")

	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// cronLogger routes robfig/cron diagnostics through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
