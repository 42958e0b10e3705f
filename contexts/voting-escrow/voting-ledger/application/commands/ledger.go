package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "tallybox/contexts/voting-escrow/voting-ledger/application"
	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	domainerrors "tallybox/contexts/voting-escrow/voting-ledger/domain/errors"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

// LedgerUseCase orchestrates the five mutating ledger operations. Every
// command loads the aggregate, applies the transition on a working copy, and
// persists only the fully-applied result; transitions that move funds commit
// the transfer and the save as one unit. A rejected or failed call leaves
// state untouched.
type LedgerUseCase struct {
	Ledger   ports.LedgerRepository
	Treasury ports.Treasury
	Outbox   ports.OutboxWriter
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

// CloseRoundResult carries the payout decision made while closing.
type CloseRoundResult struct {
	Ledger entities.Ledger
	Winner string
	Payout entities.Amount
}

// WithdrawResult carries the drained commission amount.
type WithdrawResult struct {
	Ledger entities.Ledger
	Amount entities.Amount
}

func (uc LedgerUseCase) RegisterCandidate(
	ctx context.Context,
	callerID string,
	candidateID string,
) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("candidate registration started",
		"event", "ledger_register_candidate_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"caller_id", strings.TrimSpace(callerID),
		"candidate_id", strings.TrimSpace(candidateID),
	)

	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return entities.Ledger{}, err
	}
	now := uc.now()

	next := ledger.Clone()
	if err := next.RegisterCandidate(callerID, candidateID, now); err != nil {
		logger.Warn("candidate registration rejected",
			"event", "ledger_register_candidate_rejected",
			"module", "voting-escrow/voting-ledger",
			"layer", "application",
			"caller_id", strings.TrimSpace(callerID),
			"candidate_id", strings.TrimSpace(candidateID),
			"phase", string(ledger.Phase),
			"error", err.Error(),
		)
		return entities.Ledger{}, err
	}
	if err := uc.Ledger.SaveLedger(ctx, next); err != nil {
		return entities.Ledger{}, err
	}
	if err := uc.appendLedgerEvent(ctx, "ledger.candidate_registered", now, map[string]any{
		"candidate_id":    strings.TrimSpace(candidateID),
		"candidate_count": len(next.Candidates),
	}); err != nil {
		return entities.Ledger{}, err
	}

	logger.Info("candidate registered",
		"event", "ledger_candidate_registered",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"candidate_id", strings.TrimSpace(candidateID),
		"candidate_count", len(next.Candidates),
	)
	return next, nil
}

func (uc LedgerUseCase) StartRound(ctx context.Context, callerID string) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("round start requested",
		"event", "ledger_start_round_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"caller_id", strings.TrimSpace(callerID),
	)

	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return entities.Ledger{}, err
	}
	now := uc.now()

	next := ledger.Clone()
	if err := next.StartRound(callerID, now); err != nil {
		logger.Warn("round start rejected",
			"event", "ledger_start_round_rejected",
			"module", "voting-escrow/voting-ledger",
			"layer", "application",
			"caller_id", strings.TrimSpace(callerID),
			"phase", string(ledger.Phase),
			"error", err.Error(),
		)
		return entities.Ledger{}, err
	}
	if err := uc.Ledger.SaveLedger(ctx, next); err != nil {
		return entities.Ledger{}, err
	}
	if err := uc.appendLedgerEvent(ctx, "ledger.round_started", now, map[string]any{
		"started_at":      next.StartedAt.Format(time.RFC3339),
		"deadline":        next.Deadline().Format(time.RFC3339),
		"candidate_count": len(next.Candidates),
	}); err != nil {
		return entities.Ledger{}, err
	}

	logger.Info("round started",
		"event", "ledger_round_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"started_at", next.StartedAt.Format(time.RFC3339),
		"deadline", next.Deadline().Format(time.RFC3339),
	)
	return next, nil
}

func (uc LedgerUseCase) CastVote(
	ctx context.Context,
	callerID string,
	candidateID string,
	paid entities.Amount,
) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("vote cast started",
		"event", "ledger_cast_vote_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"caller_id", strings.TrimSpace(callerID),
		"candidate_id", strings.TrimSpace(candidateID),
		"paid_amount", uint64(paid),
	)

	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return entities.Ledger{}, err
	}
	now := uc.now()

	next := ledger.Clone()
	if err := next.CastVote(callerID, candidateID, paid, now); err != nil {
		logger.Warn("vote rejected",
			"event", "ledger_cast_vote_rejected",
			"module", "voting-escrow/voting-ledger",
			"layer", "application",
			"caller_id", strings.TrimSpace(callerID),
			"candidate_id", strings.TrimSpace(candidateID),
			"phase", string(ledger.Phase),
			"error", err.Error(),
		)
		return entities.Ledger{}, err
	}
	if err := uc.Ledger.SaveLedger(ctx, next); err != nil {
		return entities.Ledger{}, err
	}
	if err := uc.appendLedgerEvent(ctx, "ledger.vote_cast", now, map[string]any{
		"candidate_id":   strings.TrimSpace(candidateID),
		"vote_count":     next.VoteCount(candidateID),
		"current_winner": next.Winner,
		"balance":        uint64(next.Balance),
	}); err != nil {
		return entities.Ledger{}, err
	}

	logger.Info("vote accepted",
		"event", "ledger_vote_accepted",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"candidate_id", strings.TrimSpace(candidateID),
		"vote_count", next.VoteCount(candidateID),
		"current_winner", next.Winner,
		"balance", uint64(next.Balance),
	)
	return next, nil
}

// CloseRound is callable by any identity once the deadline is strictly past.
// The winner payout transfer and the phase transition commit together: a
// failed transfer aborts the close with no state change.
func (uc LedgerUseCase) CloseRound(ctx context.Context, callerID string) (CloseRoundResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("round close started",
		"event", "ledger_close_round_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"caller_id", strings.TrimSpace(callerID),
	)

	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return CloseRoundResult{}, err
	}
	now := uc.now()

	next := ledger.Clone()
	winner, payout, err := next.CloseRound(now)
	if err != nil {
		logger.Warn("round close rejected",
			"event", "ledger_close_round_rejected",
			"module", "voting-escrow/voting-ledger",
			"layer", "application",
			"caller_id", strings.TrimSpace(callerID),
			"phase", string(ledger.Phase),
			"error", err.Error(),
		)
		return CloseRoundResult{}, err
	}
	// Payout and phase transition commit as one unit so a failed save can
	// never leave a paid winner behind a still-open round.
	if payout > 0 {
		if err := uc.Treasury.SaveLedgerWithTransfer(ctx, next, winner, payout); err != nil {
			logger.Error("winner payout commit failed",
				"event", "ledger_close_round_transfer_failed",
				"module", "voting-escrow/voting-ledger",
				"layer", "application",
				"winner", winner,
				"payout", uint64(payout),
				"error", err.Error(),
			)
			return CloseRoundResult{}, err
		}
	} else if err := uc.Ledger.SaveLedger(ctx, next); err != nil {
		return CloseRoundResult{}, err
	}
	if err := uc.appendLedgerEvent(ctx, "ledger.round_closed", now, map[string]any{
		"winner":     winner,
		"payout":     uint64(payout),
		"commission": uint64(next.Balance),
	}); err != nil {
		return CloseRoundResult{}, err
	}

	logger.Info("round closed",
		"event", "ledger_round_closed",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"winner", winner,
		"payout", uint64(payout),
		"commission", uint64(next.Balance),
	)
	return CloseRoundResult{Ledger: next, Winner: winner, Payout: payout}, nil
}

// WithdrawCommission drains the remaining balance to the destination. Repeat
// withdrawals transfer zero and succeed.
func (uc LedgerUseCase) WithdrawCommission(
	ctx context.Context,
	callerID string,
	destination string,
) (WithdrawResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	destination = strings.TrimSpace(destination)
	logger.Info("commission withdrawal started",
		"event", "ledger_withdraw_commission_started",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"caller_id", strings.TrimSpace(callerID),
		"destination", destination,
	)
	if destination == "" {
		return WithdrawResult{}, domainerrors.ErrInvalidInput
	}

	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return WithdrawResult{}, err
	}
	now := uc.now()

	next := ledger.Clone()
	amount, err := next.WithdrawCommission(callerID, now)
	if err != nil {
		logger.Warn("commission withdrawal rejected",
			"event", "ledger_withdraw_commission_rejected",
			"module", "voting-escrow/voting-ledger",
			"layer", "application",
			"caller_id", strings.TrimSpace(callerID),
			"phase", string(ledger.Phase),
			"error", err.Error(),
		)
		return WithdrawResult{}, err
	}
	if amount > 0 {
		if err := uc.Treasury.SaveLedgerWithTransfer(ctx, next, destination, amount); err != nil {
			logger.Error("commission commit failed",
				"event", "ledger_withdraw_commission_transfer_failed",
				"module", "voting-escrow/voting-ledger",
				"layer", "application",
				"destination", destination,
				"amount", uint64(amount),
				"error", err.Error(),
			)
			return WithdrawResult{}, err
		}
	} else if err := uc.Ledger.SaveLedger(ctx, next); err != nil {
		return WithdrawResult{}, err
	}
	if err := uc.appendLedgerEvent(ctx, "ledger.commission_withdrawn", now, map[string]any{
		"destination": destination,
		"amount":      uint64(amount),
	}); err != nil {
		return WithdrawResult{}, err
	}

	logger.Info("commission withdrawn",
		"event", "ledger_commission_withdrawn",
		"module", "voting-escrow/voting-ledger",
		"layer", "application",
		"destination", destination,
		"amount", uint64(amount),
	)
	return WithdrawResult{Ledger: next, Amount: amount}, nil
}

func (uc LedgerUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc LedgerUseCase) appendLedgerEvent(
	ctx context.Context,
	eventType string,
	occurredAt time.Time,
	data map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newLedgerEnvelope(eventID, eventType, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func newLedgerEnvelope(
	eventID string,
	eventType string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "voting-ledger",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "ledger",
		PartitionKey:     "ledger",
		Data:             payload,
	}, nil
}
