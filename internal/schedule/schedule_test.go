package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	if _, err := New("Mars/Olympus_Mons", zerolog.Nop()); err == nil {
		t.Fatalf("expected timezone error")
	}
	s, err := New("", zerolog.Nop())
	if err != nil {
		t.Fatalf("new with default timezone: %v", err)
	}
	if s.location.String() != "UTC" {
		t.Fatalf("expected UTC default, got %s", s.location)
	}
}

func TestAdd(t *testing.T) {
	t.Parallel()

	s, err := New("America/Denver", zerolog.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	noop := func(context.Context) error { return nil }

	if err := s.Add("ingest", "*/30 * * * *", noop); err != nil {
		t.Fatalf("add ingest: %v", err)
	}
	if err := s.Add("backfill", "", noop); err != nil {
		t.Fatalf("blank spec should disable, got %v", err)
	}
	if err := s.Add("broken", "every tuesday", noop); err == nil {
		t.Fatalf("expected invalid spec error")
	}
	if err := s.Add("nil", "0 * * * *", nil); err == nil {
		t.Fatalf("expected nil task error")
	}

	next := s.Next()
	if len(next) != 1 {
		t.Fatalf("expected one scheduled task, got %v", next)
	}
	when, ok := next["ingest"]
	if !ok || when.IsZero() {
		t.Fatalf("expected next ingest activation, got %v", next)
	}
	if minute := when.Minute(); minute != 0 && minute != 30 {
		t.Fatalf("expected half-hour activation, got %s", when)
	}
}

func TestScheduledTaskReceivesContextAndSurvivesErrors(t *testing.T) {
	t.Parallel()

	s, err := New("UTC", zerolog.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	var calls atomic.Int32
	if err := s.Add("ingest", "0 * * * *", func(ctx context.Context) error {
		if ctx == nil {
			t.Errorf("expected non-nil context")
		}
		calls.Add(1)
		return errors.New("feeds unavailable")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(entries))
	}
	entries[0].WrappedJob.Run()
	entries[0].WrappedJob.Run()
	if calls.Load() != 2 {
		t.Fatalf("expected two runs, got %d", calls.Load())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s, err := New("UTC", zerolog.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected error when nothing is scheduled")
	}

	if err := s.Add("backfill", "15 3 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if s.ctx.Err() == nil {
		t.Fatalf("expected task context to be cancelled")
	}
}
