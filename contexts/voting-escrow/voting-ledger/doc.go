// Package votingledger implements the voting-ledger module inside the
// voting-escrow context.
//
// The module owns the single-round paid-voting lifecycle: candidate
// registration, the Idle/Started/Closed phase machine, per-voter throttling,
// escrowed fee accounting, winner payout on close, and commission
// withdrawal. It keeps business rules in domain/application layers and
// isolates infrastructure concerns behind ports and adapters.
package votingledger
