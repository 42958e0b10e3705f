package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/adapters/memory"
	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

type capturingPublisher struct {
	published []ports.EventEnvelope
	topics    []string
	failOn    string
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failOn != "" && event.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	p.topics = append(p.topics, topic)
	return nil
}

func appendEvent(t *testing.T, store *memory.Store, eventID string, occurredAt time.Time) {
	t.Helper()
	err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:    eventID,
		EventType:  "ledger.vote_cast",
		OccurredAt: occurredAt,
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("append %s failed: %v", eventID, err)
	}
}

func TestRunOncePublishesAndMarks(t *testing.T) {
	store := memory.NewStore(entities.NewLedger("admin-1", time.Now().UTC()))
	publisher := &capturingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	base := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	appendEvent(t, store, "evt-1", base)
	appendEvent(t, store, "evt-2", base.Add(time.Second))

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(publisher.published) != 2 || publisher.published[0].EventID != "evt-1" {
		t.Fatalf("expected 2 events oldest-first, got %v", publisher.published)
	}
	if publisher.topics[0] != "ledger.vote_cast" {
		t.Fatalf("expected event type as topic, got %q", publisher.topics[0])
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox after relay, got %d", len(pending))
	}
}

func TestRunOnceStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore(entities.NewLedger("admin-1", time.Now().UTC()))
	publisher := &capturingPublisher{failOn: "evt-2"}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	base := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	appendEvent(t, store, "evt-1", base)
	appendEvent(t, store, "evt-2", base.Add(time.Second))
	appendEvent(t, store, "evt-3", base.Add(2*time.Second))

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish failure to surface")
	}

	// evt-1 was marked published, evt-2 and evt-3 remain for the next cycle.
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 2 || pending[0].OutboxID != "evt-2" {
		t.Fatalf("expected evt-2 and evt-3 pending, got %v", pending)
	}

	publisher.failOn = ""
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	pending, err = store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("relist failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d", len(pending))
	}
}

func TestRunOnceEmptyOutboxIsNoop(t *testing.T) {
	store := memory.NewStore(entities.NewLedger("admin-1", time.Now().UTC()))
	publisher := &capturingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("no events expected, got %d", len(publisher.published))
	}
}
