// Package domain holds the pure types shared by both schedulers.
// A TaskInstance flows: submit → queue → in flight → completed (or failed).
package domain

import (
	"fmt"
	"time"
)

// TaskKind is one of the fixed categories of work defined by the catalog.
type TaskKind string

const (
	KindRectangle TaskKind = "rectangle"
	KindCircle    TaskKind = "circle"
	KindTriangle  TaskKind = "triangle"
	KindLine      TaskKind = "line"
)

// String returns the kind name.
func (k TaskKind) String() string { return string(k) }

// TaskInstance is one concrete submission of a task kind.
type TaskInstance struct {
	ID          string    `json:"id"`
	Kind        TaskKind  `json:"kind"`
	Label       string    `json:"label"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Elapsed returns how long the task took from submission to completion
// (0 if it has not completed).
func (t TaskInstance) Elapsed() time.Duration {
	if t.SubmittedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.SubmittedAt)
}

// TaskID builds the instance id for the seq-th submission of a scheduler.
// The counter is per scheduler, so repeated kinds never collide.
func TaskID(kind TaskKind, seq uint64) string {
	return fmt.Sprintf("%s-%d", kind, seq)
}

// Snapshot is an immutable copy of a scheduler's observable state.
type Snapshot struct {
	Scheduler string         `json:"scheduler"`
	Queue     []TaskInstance `json:"queue"`
	InFlight  []TaskInstance `json:"in_flight"`
	Completed []TaskInstance `json:"completed"`
	Failed    []TaskInstance `json:"failed,omitempty"`
}

// Pending returns the number of tasks not yet terminal.
func (s Snapshot) Pending() int {
	return len(s.Queue) + len(s.InFlight)
}

// Contains reports which list holds id ("queue", "in_flight", "completed",
// "failed"), or "" if none does.
func (s Snapshot) Contains(id string) string {
	lists := []struct {
		name  string
		tasks []TaskInstance
	}{
		{"queue", s.Queue},
		{"in_flight", s.InFlight},
		{"completed", s.Completed},
		{"failed", s.Failed},
	}
	for _, l := range lists {
		for _, t := range l.tasks {
			if t.ID == id {
				return l.name
			}
		}
	}
	return ""
}
