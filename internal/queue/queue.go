// Package queue hands enrichment work from the ingest path to workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/crashreports/internal/globaltime"
)

var (
	// ErrClosed is returned once a queue is closed and has no buffered jobs left.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by TryEnqueue when the buffer has no room.
	ErrFull = errors.New("queue full")
)

type Reason string

const (
	ReasonCreated    Reason = "created"
	ReasonRegenerate Reason = "regenerate"
	ReasonBackfill   Reason = "backfill"
)

// Job asks a worker to enrich one incident.
type Job struct {
	JobID      string    `json:"job_id"`
	IncidentID int64     `json:"incident_id"`
	Reason     Reason    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempt    int       `json:"attempt"`
}

func NewJob(incidentID int64, reason Reason) Job {
	return Job{
		JobID:      uuid.NewString(),
		IncidentID: incidentID,
		Reason:     reason,
		EnqueuedAt: globaltime.UTC(),
		Attempt:    1,
	}
}

func (j Job) Validate() error {
	if j.IncidentID <= 0 {
		return fmt.Errorf("job incident id must be > 0")
	}
	switch j.Reason {
	case ReasonCreated, ReasonRegenerate, ReasonBackfill:
	default:
		return fmt.Errorf("unknown job reason %q", j.Reason)
	}
	if strings.TrimSpace(j.JobID) == "" {
		return fmt.Errorf("job id is required")
	}
	return nil
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// TryEnqueuer is implemented by queues whose Enqueue can block on a full
// buffer.
type TryEnqueuer interface {
	TryEnqueue(job Job) error
}

// Offer hands job to q without waiting for buffer space. Queues that do
// not implement TryEnqueuer fall back to Enqueue.
func Offer(ctx context.Context, q Queue, job Job) error {
	if tq, ok := q.(TryEnqueuer); ok {
		return tq.TryEnqueue(job)
	}
	return q.Enqueue(ctx, job)
}
