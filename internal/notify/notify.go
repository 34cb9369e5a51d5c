// Package notify publishes incident lifecycle events to NATS so other
// services can react to new coverage without polling the database.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"horse.fit/crashreports/internal/globaltime"
)

const (
	EventIncidentCreated     = "incident.created"
	EventIncidentSourceAdded = "incident.source_added"
	EventIncidentEnriched    = "incident.enriched"

	DefaultSubjectPrefix = "crashreports"
)

// Event is the JSON body of every published message.
type Event struct {
	Type          string    `json:"type"`
	IncidentID    int64     `json:"incident_id"`
	Slug          string    `json:"slug"`
	SourceURL     string    `json:"source_url,omitempty"`
	QualityStatus string    `json:"quality_status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Notifier interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop drops every event. It is used when NATS_URL is unset.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each event on "<prefix>.<event type>".
type NATSNotifier struct {
	nc     *nats.Conn
	pub    publisher
	prefix string
}

func NewNATSNotifier(url, subjectPrefix string) (*NATSNotifier, error) {
	target := strings.TrimSpace(url)
	if target == "" {
		target = nats.DefaultURL
	}
	nc, err := nats.Connect(target,
		nats.Name("crashreports"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSNotifier{nc: nc, pub: nc, prefix: normalizePrefix(subjectPrefix)}, nil
}

func (n *NATSNotifier) Publish(_ context.Context, evt Event) error {
	if strings.TrimSpace(evt.Type) == "" || evt.IncidentID <= 0 {
		return fmt.Errorf("invalid event: type and incident id are required")
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = globaltime.UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.pub.Publish(n.Subject(evt.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

func (n *NATSNotifier) Subject(eventType string) string {
	return n.prefix + "." + eventType
}

func (n *NATSNotifier) Close() error {
	if n == nil || n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}

func normalizePrefix(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), ".")
	if trimmed == "" {
		return DefaultSubjectPrefix
	}
	return trimmed
}
