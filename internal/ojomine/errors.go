package ojomine

import "errors"

// Domain errors surfaced to callers. Handlers map these to the small set of
// user-facing messages; anything else is reported as a generic retryable
// storage failure.
var (
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidState      = errors.New("invalid state")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSponsorCycle      = errors.New("sponsor chain cycle detected")
)
