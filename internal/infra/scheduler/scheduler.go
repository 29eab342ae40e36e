// Package scheduler implements the two task-scheduling disciplines.
//
// Core concepts:
//   - Concurrent: every accepted task runs on its own timer sized by the
//     catalog duration; tasks never wait for each other.
//   - Sequential: a FIFO queue drained by a single worker that performs
//     one backend round-trip at a time (single-flight).
//   - Notification: every transition is published to subscribers together
//     with the post-transition snapshot.
package scheduler

import (
	"sync/atomic"

	"github.com/tutu-network/shapeq/internal/domain"
)

var (
	_ domain.Scheduler = (*Concurrent)(nil)
	_ domain.Scheduler = (*Sequential)(nil)
)

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats holds lifetime counters for one scheduler.
type Stats struct {
	Scheduler      string `json:"scheduler"`
	Session        string `json:"session"`
	TotalSubmitted int64  `json:"total_submitted"`
	TotalCompleted int64  `json:"total_completed"`
	TotalFailed    int64  `json:"total_failed"`
	TotalDropped   int64  `json:"total_dropped"`
	Subscribers    int    `json:"subscribers"`
}

type counters struct {
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func (c *counters) stats(name, session string, subscribers int) Stats {
	return Stats{
		Scheduler:      name,
		Session:        session,
		TotalSubmitted: c.submitted.Load(),
		TotalCompleted: c.completed.Load(),
		TotalFailed:    c.failed.Load(),
		TotalDropped:   c.dropped.Load(),
		Subscribers:    subscribers,
	}
}

// ─── Internal ───────────────────────────────────────────────────────────────

// cloneTasks copies a task list; never returns nil so JSON renders [].
func cloneTasks(in []domain.TaskInstance) []domain.TaskInstance {
	out := make([]domain.TaskInstance, len(in))
	copy(out, in)
	return out
}
