package domain

import "time"

// EventType names a scheduler state transition.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// IsTerminal returns true if the task cannot move again after this event.
func (e EventType) IsTerminal() bool {
	return e == EventCompleted || e == EventFailed
}

// Event is published to subscribers after every transition. State is the
// snapshot taken under the same lock as the transition.
type Event struct {
	Type      EventType    `json:"type"`
	Scheduler string       `json:"scheduler"`
	Task      TaskInstance `json:"task"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
	State     Snapshot     `json:"state"`
}
