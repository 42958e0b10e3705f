package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/adapters/memory"
	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	domainerrors "tallybox/contexts/voting-escrow/voting-ledger/domain/errors"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

const testAdminID = "admin-1"

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestUseCase(t *testing.T) (LedgerUseCase, *memory.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore(entities.NewLedger(testAdminID, clock.now))
	uc := LedgerUseCase{
		Ledger:   store,
		Treasury: store,
		Outbox:   store,
		Clock:    clock,
		IDGen:    store,
	}
	return uc, store, clock
}

func startedRound(t *testing.T, uc LedgerUseCase, candidates ...string) {
	t.Helper()
	ctx := context.Background()
	for _, candidateID := range candidates {
		if _, err := uc.RegisterCandidate(ctx, testAdminID, candidateID); err != nil {
			t.Fatalf("register %s failed: %v", candidateID, err)
		}
	}
	if _, err := uc.StartRound(ctx, testAdminID); err != nil {
		t.Fatalf("start round failed: %v", err)
	}
}

func TestFullRoundScenario(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice", "bob", "carol")

	votes := []struct {
		voter     string
		candidate string
	}{
		{"v1", "alice"},
		{"v2", "bob"},
		{"v3", "bob"},
	}
	for _, vote := range votes {
		clock.advance(time.Minute)
		ledger, err := uc.CastVote(ctx, vote.voter, vote.candidate, entities.VoteFee)
		if err != nil {
			t.Fatalf("vote from %s failed: %v", vote.voter, err)
		}
		if !ledger.HasVoted(vote.voter) {
			t.Fatalf("voter %s not recorded", vote.voter)
		}
	}

	clock.advance(entities.RoundDuration)
	result, err := uc.CloseRound(ctx, "anyone")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if result.Winner != "bob" {
		t.Fatalf("expected winner bob, got %q", result.Winner)
	}
	// Escrow of 3 truncates to a zero winner share; everything stays for the
	// commission withdrawal.
	if result.Payout != 0 {
		t.Fatalf("expected payout 0, got %d", result.Payout)
	}
	if store.AccountBalance("bob") != 0 {
		t.Fatalf("no transfer expected for zero payout")
	}

	withdrawal, err := uc.WithdrawCommission(ctx, testAdminID, "ops-wallet")
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if withdrawal.Amount != 3 {
		t.Fatalf("expected commission 3, got %d", withdrawal.Amount)
	}
	if store.AccountBalance("ops-wallet") != 3 {
		t.Fatalf("commission not credited, got %d", store.AccountBalance("ops-wallet"))
	}

	repeat, err := uc.WithdrawCommission(ctx, testAdminID, "ops-wallet")
	if err != nil {
		t.Fatalf("repeat withdraw failed: %v", err)
	}
	if repeat.Amount != 0 || store.AccountBalance("ops-wallet") != 3 {
		t.Fatalf("repeat withdraw must be a no-op, got %d / %d", repeat.Amount, store.AccountBalance("ops-wallet"))
	}
}

func TestCloseRoundPaysWinnerShare(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice", "bob")
	voters := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10"}
	for i, voter := range voters {
		clock.advance(time.Minute)
		candidate := "alice"
		if i >= 7 {
			candidate = "bob"
		}
		if _, err := uc.CastVote(ctx, voter, candidate, entities.VoteFee); err != nil {
			t.Fatalf("vote from %s failed: %v", voter, err)
		}
	}

	clock.advance(entities.RoundDuration)
	result, err := uc.CloseRound(ctx, "closer")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if result.Winner != "alice" {
		t.Fatalf("expected winner alice, got %q", result.Winner)
	}
	// Escrow 10: winner takes 9, commission keeps 1.
	if result.Payout != 9 {
		t.Fatalf("expected payout 9, got %d", result.Payout)
	}
	if store.AccountBalance("alice") != 9 {
		t.Fatalf("winner not credited, got %d", store.AccountBalance("alice"))
	}
	if result.Ledger.Balance != 1 {
		t.Fatalf("expected commission residue 1, got %d", result.Ledger.Balance)
	}
}

func TestCloseRoundTransferFailureLeavesStateUntouched(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice", "bob")
	voters := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10"}
	for _, voter := range voters {
		clock.advance(time.Minute)
		if _, err := uc.CastVote(ctx, voter, "alice", entities.VoteFee); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}

	clock.advance(entities.RoundDuration)
	transferErr := errors.New("treasury offline")
	store.SetTransferFailure(transferErr)
	if _, err := uc.CloseRound(ctx, "closer"); !errors.Is(err, transferErr) {
		t.Fatalf("expected transfer error surfaced, got %v", err)
	}

	ledger, err := store.GetLedger(ctx)
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	if ledger.Phase != entities.PhaseStarted || ledger.Balance != 10 {
		t.Fatalf("failed transfer must not commit close, got %s balance %d", ledger.Phase, ledger.Balance)
	}

	store.SetTransferFailure(nil)
	result, err := uc.CloseRound(ctx, "closer")
	if err != nil {
		t.Fatalf("retry close failed: %v", err)
	}
	if result.Payout != 9 || store.AccountBalance("alice") != 9 {
		t.Fatalf("retry close did not pay out, got %d / %d", result.Payout, store.AccountBalance("alice"))
	}
}

// flakyTreasury fails a configured number of settlement commits before
// delegating to the real store.
type flakyTreasury struct {
	store    *memory.Store
	failures int
}

func (f *flakyTreasury) SaveLedgerWithTransfer(
	ctx context.Context,
	ledger entities.Ledger,
	destination string,
	amount entities.Amount,
) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset during commit")
	}
	return f.store.SaveLedgerWithTransfer(ctx, ledger, destination, amount)
}

func TestCloseRoundRetryAfterFailedCommitPaysExactlyOnce(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice", "bob")
	voters := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10"}
	for _, voter := range voters {
		clock.advance(time.Minute)
		if _, err := uc.CastVote(ctx, voter, "alice", entities.VoteFee); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}
	clock.advance(entities.RoundDuration)

	uc.Treasury = &flakyTreasury{store: store, failures: 1}
	if _, err := uc.CloseRound(ctx, "closer"); err == nil {
		t.Fatalf("expected first close to fail")
	}

	ledger, err := store.GetLedger(ctx)
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	if ledger.Phase != entities.PhaseStarted || ledger.Balance != 10 {
		t.Fatalf("failed commit must leave round open, got %s balance %d", ledger.Phase, ledger.Balance)
	}
	if store.AccountBalance("alice") != 0 {
		t.Fatalf("failed commit must not credit winner, got %d", store.AccountBalance("alice"))
	}

	result, err := uc.CloseRound(ctx, "closer")
	if err != nil {
		t.Fatalf("retry close failed: %v", err)
	}
	if result.Payout != 9 {
		t.Fatalf("expected payout 9, got %d", result.Payout)
	}
	if got := store.AccountBalance("alice"); got != 9 {
		t.Fatalf("winner must be paid exactly once, got %d", got)
	}

	if _, err := uc.CloseRound(ctx, "closer"); !errors.Is(err, domainerrors.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase on third close, got %v", err)
	}
	if got := store.AccountBalance("alice"); got != 9 {
		t.Fatalf("closed round must never pay again, got %d", got)
	}
}

func TestWithdrawRetryAfterFailedCommitCreditsExactlyOnce(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice")
	for _, voter := range []string{"v1", "v2", "v3"} {
		clock.advance(time.Minute)
		if _, err := uc.CastVote(ctx, voter, "alice", entities.VoteFee); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}
	clock.advance(entities.RoundDuration)
	if _, err := uc.CloseRound(ctx, "closer"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	uc.Treasury = &flakyTreasury{store: store, failures: 1}
	if _, err := uc.WithdrawCommission(ctx, testAdminID, "ops-wallet"); err == nil {
		t.Fatalf("expected first withdrawal to fail")
	}
	ledger, err := store.GetLedger(ctx)
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	if ledger.Balance != 3 || store.AccountBalance("ops-wallet") != 0 {
		t.Fatalf("failed commit must drain nothing, balance %d credited %d",
			ledger.Balance, store.AccountBalance("ops-wallet"))
	}

	result, err := uc.WithdrawCommission(ctx, testAdminID, "ops-wallet")
	if err != nil {
		t.Fatalf("retry withdraw failed: %v", err)
	}
	if result.Amount != 3 || store.AccountBalance("ops-wallet") != 3 {
		t.Fatalf("commission must be credited exactly once, got %d / %d",
			result.Amount, store.AccountBalance("ops-wallet"))
	}

	repeat, err := uc.WithdrawCommission(ctx, testAdminID, "ops-wallet")
	if err != nil {
		t.Fatalf("repeat withdraw failed: %v", err)
	}
	if repeat.Amount != 0 || store.AccountBalance("ops-wallet") != 3 {
		t.Fatalf("repeat withdraw must credit nothing, got %d / %d",
			repeat.Amount, store.AccountBalance("ops-wallet"))
	}
}

func TestCastVoteRejectionsDoNotPersist(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice")
	clock.advance(time.Minute)

	if _, err := uc.CastVote(ctx, "v1", "alice", entities.VoteFee+1); !errors.Is(err, domainerrors.ErrWrongFee) {
		t.Fatalf("expected ErrWrongFee, got %v", err)
	}
	if _, err := uc.CastVote(ctx, "v1", "mallory", entities.VoteFee); !errors.Is(err, domainerrors.ErrUnknownCandidate) {
		t.Fatalf("expected ErrUnknownCandidate, got %v", err)
	}

	ledger, err := store.GetLedger(ctx)
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	if ledger.Balance != 0 || ledger.HasVoted("v1") {
		t.Fatalf("rejected votes leaked into persisted state")
	}

	if _, err := uc.CastVote(ctx, "v1", "alice", entities.VoteFee); err != nil {
		t.Fatalf("valid vote failed: %v", err)
	}
	if _, err := uc.CastVote(ctx, "v1", "alice", entities.VoteFee); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestVoteAtDeadlineBoundaryAccepted(t *testing.T) {
	uc, _, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice")

	clock.advance(entities.RoundDuration)
	if _, err := uc.CastVote(ctx, "v1", "alice", entities.VoteFee); err != nil {
		t.Fatalf("boundary vote failed: %v", err)
	}
	if _, err := uc.CloseRound(ctx, "closer"); !errors.Is(err, domainerrors.ErrRoundNotEnded) {
		t.Fatalf("expected ErrRoundNotEnded at boundary, got %v", err)
	}

	clock.advance(time.Second)
	if _, err := uc.CastVote(ctx, "v2", "alice", entities.VoteFee); !errors.Is(err, domainerrors.ErrRoundEnded) {
		t.Fatalf("expected ErrRoundEnded past boundary, got %v", err)
	}
	if _, err := uc.CloseRound(ctx, "closer"); err != nil {
		t.Fatalf("close past boundary failed: %v", err)
	}
}

func TestWithdrawRequiresDestinationAndAdmin(t *testing.T) {
	uc, _, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice")
	clock.advance(entities.RoundDuration + time.Second)
	if _, err := uc.CloseRound(ctx, "closer"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := uc.WithdrawCommission(ctx, testAdminID, "  "); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank destination, got %v", err)
	}
	if _, err := uc.WithdrawCommission(ctx, "stranger", "ops-wallet"); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCommandsAppendOutboxEvents(t *testing.T) {
	uc, store, clock := newTestUseCase(t)
	ctx := context.Background()

	startedRound(t, uc, "alice")
	clock.advance(time.Minute)
	if _, err := uc.CastVote(ctx, "v1", "alice", entities.VoteFee); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	clock.advance(entities.RoundDuration)
	if _, err := uc.CloseRound(ctx, "closer"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := uc.WithdrawCommission(ctx, testAdminID, "ops-wallet"); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(ctx, 0)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	counts := make(map[string]int)
	for _, message := range pending {
		counts[message.EventType]++
	}
	expected := map[string]int{
		"ledger.candidate_registered": 1,
		"ledger.round_started":        1,
		"ledger.vote_cast":            1,
		"ledger.round_closed":         1,
		"ledger.commission_withdrawn": 1,
	}
	for eventType, want := range expected {
		if counts[eventType] != want {
			t.Fatalf("expected %d %s events, got %d", want, eventType, counts[eventType])
		}
	}
}

var _ ports.Clock = (*fakeClock)(nil)
