package messaging

import (
	"context"
	"testing"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	kafka, err := NewKafka([]string{"localhost:9092"}, nil)
	if err != nil {
		t.Fatalf("new kafka failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ports.EventEnvelope, 1)
	err = kafka.Subscribe(ctx, "ledger.round_closed", "test-cg", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	err = kafka.Publish(ctx, "ledger.round_closed", ports.EventEnvelope{
		EventID:   "evt-1",
		EventType: "ledger.round_closed",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.EventID != "evt-1" {
			t.Fatalf("unexpected event %q", event.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never received the event")
	}
}

func TestPublishSkipsOtherTopics(t *testing.T) {
	kafka, err := NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("new kafka failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ports.EventEnvelope, 1)
	err = kafka.Subscribe(ctx, "ledger.round_closed", "test-cg", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	err = kafka.Publish(ctx, "ledger.vote_cast", ports.EventEnvelope{EventID: "evt-2"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-received:
		t.Fatalf("subscriber received event %q from foreign topic", event.EventID)
	case <-time.After(100 * time.Millisecond):
	}
}
