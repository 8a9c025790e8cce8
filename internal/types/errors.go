package types

import "errors"

// Sentinel errors shared across packages. Callers should compare with
// errors.Is. The run state manager returns ErrNoActiveSession and
// ErrSessionExists; no package returns the others.
var (
	ErrNoActiveSession  = errors.New("types: no active session")
	ErrSessionExists    = errors.New("types: session already exists")
	ErrBudgetExhausted  = errors.New("types: step budget exhausted")
	ErrPRBudgetExhausted = errors.New("types: PR budget exhausted")
	ErrScopeViolation   = errors.New("types: path outside allowed scope")
	ErrTicketNotFound   = errors.New("types: ticket not found")
	ErrInvalidPhaseTransition = errors.New("types: invalid phase transition")
	ErrSpindleTripped   = errors.New("types: spindle loop detector tripped")
	ErrProposalRejected = errors.New("types: proposal rejected by pipeline")
)
