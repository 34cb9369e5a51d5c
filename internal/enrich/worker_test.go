package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/crashreports/internal/incident"
	"horse.fit/crashreports/internal/notify"
	"horse.fit/crashreports/internal/queue"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []EnrichOptions
	ids   []int64
	fail  map[int64]bool
}

func (h *recordingHandler) EnrichIncident(_ context.Context, id int64, opts EnrichOptions) (EnrichResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, opts)
	h.ids = append(h.ids, id)
	if h.fail[id] {
		return EnrichResult{}, errors.New("boom")
	}
	return EnrichResult{IncidentID: id, Slug: "slug", ArticleGenerated: true, Status: incident.QualityOK}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, evt notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func TestWorkerDrainsQueueAndStopsOnClose(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(8)
	ctx := context.Background()
	for _, job := range []queue.Job{
		queue.NewJob(1, queue.ReasonCreated),
		queue.NewJob(2, queue.ReasonRegenerate),
		queue.NewJob(3, queue.ReasonBackfill),
	} {
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	_ = q.Close()

	handler := &recordingHandler{fail: map[int64]bool{2: true}}
	notifier := &recordingNotifier{}
	worker := NewWorker(q, handler, zerolog.Nop(), WorkerOptions{OnlyIfMissing: true, Notifier: notifier})

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after queue close")
	}

	if len(handler.ids) != 3 {
		t.Fatalf("expected all jobs handled despite failure, got %v", handler.ids)
	}
	if !handler.calls[0].SkipIfEnriched {
		t.Fatalf("expected created job to skip enriched incidents")
	}
	if handler.calls[1].SkipIfEnriched || handler.calls[2].SkipIfEnriched {
		t.Fatalf("expected regenerate and backfill jobs to always run")
	}
	if len(notifier.events) != 2 {
		t.Fatalf("expected enriched events for successful jobs, got %+v", notifier.events)
	}
	if notifier.events[0].Type != notify.EventIncidentEnriched || notifier.events[0].IncidentID != 1 || notifier.events[0].QualityStatus != "OK" {
		t.Fatalf("unexpected event: %+v", notifier.events[0])
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(1)
	worker := NewWorker(q, &recordingHandler{}, zerolog.Nop(), WorkerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}
