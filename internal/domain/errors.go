package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Catalog errors
	ErrUnknownKind    = errors.New("unknown task kind")
	ErrInvalidCatalog = errors.New("invalid task catalog")
	ErrDuplicateKind  = errors.New("duplicate task kind in catalog")

	// Scheduler errors
	ErrSchedulerClosed  = errors.New("scheduler is closed")
	ErrUnknownScheduler = errors.New("unknown scheduler mode")

	// Backend errors
	ErrBackendStatus      = errors.New("backend returned non-success status")
	ErrBackendUnreachable = errors.New("backend is unreachable")

	// Journal errors
	ErrJournalDisabled = errors.New("session journal is disabled")
)
