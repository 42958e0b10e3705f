package errors

import "errors"

var (
	ErrUnauthorized       = errors.New("caller lacks required privilege")
	ErrInvalidPhase       = errors.New("operation not allowed in current phase")
	ErrDuplicateCandidate = errors.New("candidate is already registered")
	ErrNoCandidates       = errors.New("candidate registry is empty")
	ErrRoundEnded         = errors.New("voting round deadline has passed")
	ErrRoundNotEnded      = errors.New("voting round deadline has not passed")
	ErrRoundNotClosed     = errors.New("voting round is not closed")
	ErrAlreadyVoted       = errors.New("caller has already cast a vote")
	ErrWrongFee           = errors.New("attached payment does not match the vote fee")
	ErrUnknownCandidate   = errors.New("candidate is not registered")
	ErrInvalidInput       = errors.New("invalid ledger input")
	ErrLedgerNotFound     = errors.New("voting ledger not found")
	ErrConflict           = errors.New("ledger state conflict")
	ErrTransferFailed     = errors.New("funds transfer failed")
)
