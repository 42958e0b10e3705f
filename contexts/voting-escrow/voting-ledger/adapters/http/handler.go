package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/application/commands"
	"tallybox/contexts/voting-escrow/voting-ledger/application/queries"
	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	httptransport "tallybox/contexts/voting-escrow/voting-ledger/transport/http"
)

type Handler struct {
	Ledger commands.LedgerUseCase
	Status queries.StatusUseCase
	Logger *slog.Logger
}

func (h Handler) RegisterCandidateHandler(
	ctx context.Context,
	callerID string,
	req httptransport.RegisterCandidateRequest,
) (httptransport.LedgerStatusResponse, error) {
	ledger, err := h.Ledger.RegisterCandidate(ctx, callerID, req.CandidateID)
	if err != nil {
		return httptransport.LedgerStatusResponse{}, err
	}
	return statusResponseFromLedger(ledger), nil
}

func (h Handler) StartRoundHandler(ctx context.Context, callerID string) (httptransport.LedgerStatusResponse, error) {
	ledger, err := h.Ledger.StartRound(ctx, callerID)
	if err != nil {
		return httptransport.LedgerStatusResponse{}, err
	}
	return statusResponseFromLedger(ledger), nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	callerID string,
	req httptransport.CastVoteRequest,
) (httptransport.LedgerStatusResponse, error) {
	ledger, err := h.Ledger.CastVote(ctx, callerID, req.CandidateID, entities.Amount(req.PaidAmount))
	if err != nil {
		return httptransport.LedgerStatusResponse{}, err
	}
	return statusResponseFromLedger(ledger), nil
}

func (h Handler) CloseRoundHandler(ctx context.Context, callerID string) (httptransport.CloseRoundResponse, error) {
	result, err := h.Ledger.CloseRound(ctx, callerID)
	if err != nil {
		return httptransport.CloseRoundResponse{}, err
	}
	return httptransport.CloseRoundResponse{
		Status: statusResponseFromLedger(result.Ledger),
		Winner: result.Winner,
		Payout: uint64(result.Payout),
	}, nil
}

func (h Handler) WithdrawCommissionHandler(
	ctx context.Context,
	callerID string,
	req httptransport.WithdrawCommissionRequest,
) (httptransport.WithdrawCommissionResponse, error) {
	result, err := h.Ledger.WithdrawCommission(ctx, callerID, req.Destination)
	if err != nil {
		return httptransport.WithdrawCommissionResponse{}, err
	}
	return httptransport.WithdrawCommissionResponse{
		Status:      statusResponseFromLedger(result.Ledger),
		Destination: req.Destination,
		Amount:      uint64(result.Amount),
	}, nil
}

func (h Handler) StatusHandler(ctx context.Context) (httptransport.LedgerStatusResponse, error) {
	status, err := h.Status.Status(ctx)
	if err != nil {
		return httptransport.LedgerStatusResponse{}, err
	}
	resp := httptransport.LedgerStatusResponse{
		AdminID:    status.AdminID,
		Phase:      string(status.Phase),
		Balance:    uint64(status.Balance),
		Candidates: status.Candidates,
	}
	if !status.StartedAt.IsZero() {
		resp.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
		resp.Deadline = status.Deadline.UTC().Format(time.RFC3339)
	}
	// The leader stays hidden while voting is open.
	if status.Phase == entities.PhaseClosed {
		resp.Winner = status.Winner
	}
	return resp, nil
}

func (h Handler) CandidatesHandler(ctx context.Context) (httptransport.CandidateListResponse, error) {
	standings, err := h.Status.Candidates(ctx)
	if err != nil {
		return httptransport.CandidateListResponse{}, err
	}
	items := make([]httptransport.CandidateItem, 0, len(standings))
	for _, standing := range standings {
		items = append(items, httptransport.CandidateItem{
			CandidateID: standing.CandidateID,
			Votes:       standing.Votes,
		})
	}
	return httptransport.CandidateListResponse{Items: items}, nil
}

func statusResponseFromLedger(ledger entities.Ledger) httptransport.LedgerStatusResponse {
	resp := httptransport.LedgerStatusResponse{
		AdminID:    ledger.AdminID,
		Phase:      string(ledger.Phase),
		Balance:    uint64(ledger.Balance),
		Candidates: len(ledger.Candidates),
	}
	if !ledger.StartedAt.IsZero() {
		resp.StartedAt = ledger.StartedAt.UTC().Format(time.RFC3339)
		resp.Deadline = ledger.Deadline().UTC().Format(time.RFC3339)
	}
	if ledger.Phase == entities.PhaseClosed {
		resp.Winner = ledger.Winner
	}
	return resp
}
