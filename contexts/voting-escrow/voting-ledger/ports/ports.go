package ports

import (
	"context"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"

	contractsv1 "tallybox/contracts/gen/events/v1"
)

type LedgerRepository interface {
	GetLedger(ctx context.Context) (entities.Ledger, error)
	SaveLedger(ctx context.Context, ledger entities.Ledger) error
}

// Treasury commits an aggregate save together with the funds transfer that
// transition requires. Both effects land atomically: a payout can neither
// repeat on a retried save nor leave escrow without the saved state.
type Treasury interface {
	SaveLedgerWithTransfer(
		ctx context.Context,
		ledger entities.Ledger,
		destination string,
		amount entities.Amount,
	) error
}

// EventEnvelope aliases the canonical contract shape so outbox payloads and
// broker publishes stay byte-compatible across services.
type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// SettlementRecord is one processed payout event, kept as an audit journal by
// the settlement consumer.
type SettlementRecord struct {
	EventID    string
	Kind       string
	Recipient  string
	Amount     entities.Amount
	RecordedAt time.Time
}

// SettlementStore persists settlement records exactly once per event.
type SettlementStore interface {
	// RecordSettlement returns false when the event was already recorded,
	// so replayed deliveries are skipped.
	RecordSettlement(ctx context.Context, record SettlementRecord) (bool, error)
	ListSettlements(ctx context.Context) ([]SettlementRecord, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
