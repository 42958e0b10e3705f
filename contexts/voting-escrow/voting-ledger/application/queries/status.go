package queries

import (
	"context"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

type StatusUseCase struct {
	Ledger ports.LedgerRepository
}

// LedgerStatus is the persisted state surface queryable by any caller.
type LedgerStatus struct {
	AdminID    string
	Phase      entities.Phase
	Balance    entities.Amount
	Candidates int
	StartedAt  time.Time
	Deadline   time.Time
	Winner     string
}

func (uc StatusUseCase) Status(ctx context.Context) (LedgerStatus, error) {
	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return LedgerStatus{}, err
	}
	status := LedgerStatus{
		AdminID:    ledger.AdminID,
		Phase:      ledger.Phase,
		Balance:    ledger.Balance,
		Candidates: len(ledger.Candidates),
		StartedAt:  ledger.StartedAt,
		Winner:     ledger.Winner,
	}
	if !ledger.StartedAt.IsZero() {
		status.Deadline = ledger.Deadline()
	}
	return status, nil
}

// Candidates returns the registry in insertion order with sentinel-free vote
// counts. There is no ordering-by-votes guarantee.
func (uc StatusUseCase) Candidates(ctx context.Context) ([]entities.CandidateStanding, error) {
	ledger, err := uc.Ledger.GetLedger(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Standings(), nil
}
