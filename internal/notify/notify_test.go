package notify

import (
	"context"
	"encoding/json"
	"testing"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSNotifierPublishesOnTypedSubject(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	n := &NATSNotifier{pub: rec, prefix: normalizePrefix(" crashreports.events. ")}

	err := n.Publish(context.Background(), Event{
		Type:       EventIncidentCreated,
		IncidentID: 12,
		Slug:       "denver-co-crash-2024-01-15",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(rec.subjects) != 1 || rec.subjects[0] != "crashreports.events.incident.created" {
		t.Fatalf("unexpected subjects: %v", rec.subjects)
	}

	var got Event
	if err := json.Unmarshal(rec.payloads[0], &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.IncidentID != 12 || got.OccurredAt.IsZero() {
		t.Fatalf("unexpected event payload: %+v", got)
	}
}

func TestNATSNotifierRejectsIncompleteEvents(t *testing.T) {
	t.Parallel()

	n := &NATSNotifier{pub: &recordingPublisher{}, prefix: DefaultSubjectPrefix}
	if err := n.Publish(context.Background(), Event{Type: EventIncidentCreated}); err == nil {
		t.Fatalf("expected missing incident id to fail")
	}
}

func TestNopNotifier(t *testing.T) {
	t.Parallel()

	var n Notifier = Nop{}
	if err := n.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}
