package entities

import (
	"strings"
	"time"

	domainerrors "tallybox/contexts/voting-escrow/voting-ledger/domain/errors"
)

// Amount is a native-value amount counted in hundredths of the unit, so the
// literal vote fee of 0.01 is exactly one Amount. All payout arithmetic is
// integer arithmetic over this representation; division truncates.
type Amount uint64

const (
	// VoteFee is the exact payment every accepted vote must carry (0.01).
	VoteFee Amount = 1
	// RoundDuration is the fixed voting window measured from round start.
	RoundDuration = 72 * time.Hour
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseStarted Phase = "started"
	PhaseClosed  Phase = "closed"
)

// Ledger is the single voting-and-escrow aggregate. One instance runs exactly
// one round: Idle -> Started -> Closed, never backwards. A candidate tally of
// zero means "not registered"; registration seeds the tally at 1, so the
// public vote count is tally-1.
type Ledger struct {
	AdminID    string
	Phase      Phase
	Candidates []string
	Tallies    map[string]uint64
	Voters     map[string]bool
	Winner     string
	StartedAt  time.Time
	Balance    Amount
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewLedger(adminID string, now time.Time) Ledger {
	return Ledger{
		AdminID:    strings.TrimSpace(adminID),
		Phase:      PhaseIdle,
		Candidates: make([]string, 0),
		Tallies:    make(map[string]uint64),
		Voters:     make(map[string]bool),
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// Clone deep-copies the aggregate so command handlers can mutate a working
// copy and persist only fully-applied transitions.
func (l Ledger) Clone() Ledger {
	out := l
	out.Candidates = append([]string(nil), l.Candidates...)
	out.Tallies = make(map[string]uint64, len(l.Tallies))
	for id, tally := range l.Tallies {
		out.Tallies[id] = tally
	}
	out.Voters = make(map[string]bool, len(l.Voters))
	for id := range l.Voters {
		out.Voters[id] = true
	}
	return out
}

func (l *Ledger) RegisterCandidate(callerID string, candidateID string, now time.Time) error {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return domainerrors.ErrInvalidInput
	}
	if !l.isAdmin(callerID) {
		return domainerrors.ErrUnauthorized
	}
	if l.Phase != PhaseIdle {
		return domainerrors.ErrInvalidPhase
	}
	if l.Tallies[candidateID] != 0 {
		return domainerrors.ErrDuplicateCandidate
	}
	// Tally 1 is the "registered" sentinel; it never counts as a vote.
	l.Tallies[candidateID] = 1
	l.Candidates = append(l.Candidates, candidateID)
	l.UpdatedAt = now.UTC()
	return nil
}

func (l *Ledger) StartRound(callerID string, now time.Time) error {
	if !l.isAdmin(callerID) {
		return domainerrors.ErrUnauthorized
	}
	if l.Phase != PhaseIdle {
		return domainerrors.ErrInvalidPhase
	}
	if len(l.Candidates) == 0 {
		return domainerrors.ErrNoCandidates
	}
	l.StartedAt = now.UTC()
	l.Phase = PhaseStarted
	l.UpdatedAt = now.UTC()
	return nil
}

// CastVote applies one paid vote. Check order matches the operation contract:
// phase, deadline, voter throttle, fee, candidate existence. A vote at the
// exact deadline instant is still accepted; only strictly-later votes fail.
func (l *Ledger) CastVote(callerID string, candidateID string, paid Amount, now time.Time) error {
	callerID = strings.TrimSpace(callerID)
	candidateID = strings.TrimSpace(candidateID)
	if callerID == "" || candidateID == "" {
		return domainerrors.ErrInvalidInput
	}
	if l.Phase != PhaseStarted {
		return domainerrors.ErrInvalidPhase
	}
	if now.UTC().Sub(l.StartedAt) > RoundDuration {
		return domainerrors.ErrRoundEnded
	}
	if l.Voters[callerID] {
		return domainerrors.ErrAlreadyVoted
	}
	if paid != VoteFee {
		return domainerrors.ErrWrongFee
	}
	if l.Tallies[candidateID] == 0 {
		return domainerrors.ErrUnknownCandidate
	}

	l.Tallies[candidateID]++
	if l.Tallies[candidateID] > l.Tallies[l.Winner] {
		l.Winner = candidateID
	}
	l.Voters[callerID] = true
	l.Balance += paid
	l.UpdatedAt = now.UTC()
	return nil
}

// CloseRound transitions to Closed and computes the winner payout as
// (balance/10)*9 in integer arithmetic. The truncated remainder stays with
// the commission on purpose. Any caller may close once the deadline is
// strictly past.
func (l *Ledger) CloseRound(now time.Time) (string, Amount, error) {
	if l.Phase != PhaseStarted {
		return "", 0, domainerrors.ErrInvalidPhase
	}
	if now.UTC().Sub(l.StartedAt) <= RoundDuration {
		return "", 0, domainerrors.ErrRoundNotEnded
	}
	l.Phase = PhaseClosed
	l.UpdatedAt = now.UTC()
	if l.Winner == "" {
		return "", 0, nil
	}
	payout := l.Balance / 10 * 9
	l.Balance -= payout
	return l.Winner, payout, nil
}

// WithdrawCommission drains whatever balance remains after close. Repeat
// calls succeed and withdraw zero.
func (l *Ledger) WithdrawCommission(callerID string, now time.Time) (Amount, error) {
	if !l.isAdmin(callerID) {
		return 0, domainerrors.ErrUnauthorized
	}
	if l.Phase != PhaseClosed {
		return 0, domainerrors.ErrRoundNotClosed
	}
	amount := l.Balance
	l.Balance = 0
	l.UpdatedAt = now.UTC()
	return amount, nil
}

func (l Ledger) Registered(candidateID string) bool {
	return l.Tallies[strings.TrimSpace(candidateID)] != 0
}

// VoteCount is the public tally with the registration sentinel removed.
func (l Ledger) VoteCount(candidateID string) uint64 {
	tally := l.Tallies[strings.TrimSpace(candidateID)]
	if tally == 0 {
		return 0
	}
	return tally - 1
}

func (l Ledger) HasVoted(voterID string) bool {
	return l.Voters[strings.TrimSpace(voterID)]
}

func (l Ledger) Deadline() time.Time {
	return l.StartedAt.Add(RoundDuration)
}

func (l Ledger) isAdmin(callerID string) bool {
	return l.AdminID != "" && strings.TrimSpace(callerID) == l.AdminID
}

// CandidateStanding is the read-model row for the ordered registry listing.
// Order is insertion order, never vote order.
type CandidateStanding struct {
	CandidateID string
	Votes       uint64
}

func (l Ledger) Standings() []CandidateStanding {
	items := make([]CandidateStanding, 0, len(l.Candidates))
	for _, candidateID := range l.Candidates {
		items = append(items, CandidateStanding{
			CandidateID: candidateID,
			Votes:       l.VoteCount(candidateID),
		})
	}
	return items
}
