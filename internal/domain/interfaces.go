package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; presentation depends on them.

// Backend is the latency-simulating collaborator of the sequential
// scheduler. Implemented by infra/backend.Client.
type Backend interface {
	// Fetch performs one round-trip for kind and returns the response body.
	Fetch(ctx context.Context, kind TaskKind) (string, error)
}

// Scheduler is the contract both scheduling disciplines expose to the
// presentation layer.
type Scheduler interface {
	// Name identifies the discipline ("concurrent" or "sequential").
	Name() string

	// Submit accepts one task of the given kind.
	Submit(kind TaskKind) (TaskInstance, error)

	// Snapshot returns a copy of the current observable state.
	Snapshot() Snapshot

	// Subscribe registers an observer. The returned func unsubscribes.
	Subscribe(buffer int) (<-chan Event, func())

	// Close tears the scheduler down, discarding pending work.
	Close() error
}
