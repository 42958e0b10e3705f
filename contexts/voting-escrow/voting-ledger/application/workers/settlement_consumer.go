package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	application "tallybox/contexts/voting-escrow/voting-ledger/application"
	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

const (
	roundClosedTopic         = "ledger.round_closed"
	commissionWithdrawnTopic = "ledger.commission_withdrawn"
	defaultSettlementCG      = "voting-ledger-settlement-cg"

	SettlementKindWinnerPayout = "winner_payout"
	SettlementKindCommission   = "commission_withdrawal"
)

// SettlementConsumer records every payout that left escrow into the
// settlement journal. Replayed deliveries are skipped by event id, so the
// journal holds each settlement exactly once.
type SettlementConsumer struct {
	Subscriber    ports.EventSubscriber
	Settlements   ports.SettlementStore
	Clock         ports.Clock
	ConsumerGroup string
	Disabled      bool
	Logger        *slog.Logger
}

func (c SettlementConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("settlement consumer disabled by feature flag",
			"event", "ledger_settlement_consumer_disabled",
			"module", "voting-escrow/voting-ledger",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultSettlementCG
	}
	for _, topic := range []string{roundClosedTopic, commissionWithdrawnTopic} {
		if err := c.Subscriber.Subscribe(ctx, topic, group, c.handleSettlementEvent); err != nil {
			logger.Error("settlement consumer subscribe failed",
				"event", "ledger_settlement_consumer_subscribe_failed",
				"module", "voting-escrow/voting-ledger",
				"layer", "worker",
				"topic", topic,
				"consumer_group", group,
				"error", err.Error(),
			)
			return err
		}
	}
	logger.Info("settlement consumer subscriptions active",
		"event", "ledger_settlement_consumer_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c SettlementConsumer) handleSettlementEvent(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	record, ok, err := settlementFromEvent(event)
	if err != nil {
		logger.Error("settlement event decode failed",
			"event", "ledger_settlement_decode_failed",
			"module", "voting-escrow/voting-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
		return err
	}
	if !ok {
		// Round closed without votes or a drained repeat withdrawal; nothing
		// left escrow, nothing to journal.
		return nil
	}
	if c.Clock != nil {
		record.RecordedAt = c.Clock.Now().UTC()
	}

	recorded, err := c.Settlements.RecordSettlement(ctx, record)
	if err != nil {
		return err
	}
	if !recorded {
		logger.Debug("settlement event replay skipped",
			"event", "ledger_settlement_replayed",
			"module", "voting-escrow/voting-ledger",
			"layer", "worker",
			"event_id", event.EventID,
		)
		return nil
	}
	logger.Info("settlement recorded",
		"event", "ledger_settlement_recorded",
		"module", "voting-escrow/voting-ledger",
		"layer", "worker",
		"event_id", event.EventID,
		"kind", record.Kind,
		"recipient", record.Recipient,
		"amount", uint64(record.Amount),
	)
	return nil
}

func settlementFromEvent(event ports.EventEnvelope) (ports.SettlementRecord, bool, error) {
	record := ports.SettlementRecord{
		EventID:    strings.TrimSpace(event.EventID),
		RecordedAt: event.OccurredAt.UTC(),
	}
	switch event.EventType {
	case roundClosedTopic:
		var payload struct {
			Winner string `json:"winner"`
			Payout uint64 `json:"payout"`
		}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return ports.SettlementRecord{}, false, err
		}
		if payload.Winner == "" || payload.Payout == 0 {
			return ports.SettlementRecord{}, false, nil
		}
		record.Kind = SettlementKindWinnerPayout
		record.Recipient = payload.Winner
		record.Amount = entities.Amount(payload.Payout)
	case commissionWithdrawnTopic:
		var payload struct {
			Destination string `json:"destination"`
			Amount      uint64 `json:"amount"`
		}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return ports.SettlementRecord{}, false, err
		}
		if payload.Amount == 0 {
			return ports.SettlementRecord{}, false, nil
		}
		record.Kind = SettlementKindCommission
		record.Recipient = payload.Destination
		record.Amount = entities.Amount(payload.Amount)
	default:
		return ports.SettlementRecord{}, false, nil
	}
	return record, true, nil
}
