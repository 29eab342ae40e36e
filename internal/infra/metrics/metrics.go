// Package metrics provides Prometheus metrics for shapeq.
// Counters, gauges and histograms for both schedulers, the backend
// client and the delay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksSubmitted tracks accepted submissions by scheduler and kind.
var TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shapeq",
	Name:      "tasks_submitted_total",
	Help:      "Total tasks accepted by a scheduler.",
}, []string{"scheduler", "kind"})

// TasksCompleted tracks completed tasks by scheduler and kind.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shapeq",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
}, []string{"scheduler", "kind"})

// TasksFailed tracks sequential tasks dropped after a backend failure.
var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shapeq",
	Name:      "tasks_failed_total",
	Help:      "Total tasks whose backend call failed.",
}, []string{"kind", "reason"})

// TasksDropped tracks pending tasks discarded at teardown.
var TasksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shapeq",
	Name:      "tasks_dropped_total",
	Help:      "Total pending tasks discarded when a scheduler was closed.",
}, []string{"scheduler"})

// QueueDepth tracks tasks waiting in a scheduler's queue.
var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "shapeq",
	Name:      "queue_depth",
	Help:      "Number of tasks in a scheduler's queue.",
}, []string{"scheduler"})

// TasksInFlight tracks tasks currently being processed.
var TasksInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "shapeq",
	Name:      "tasks_in_flight",
	Help:      "Number of tasks currently in flight.",
}, []string{"scheduler"})

// ─── Backend ────────────────────────────────────────────────────────────────

// BackendLatency tracks round-trip time to the delay service.
var BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "shapeq",
	Name:      "backend_latency_seconds",
	Help:      "Delay service round-trip duration in seconds.",
	Buckets:   []float64{0.1, 0.5, 1, 2, 3, 4, 5, 10},
}, []string{"kind"})

// DelayRequests tracks requests served by the delay service.
var DelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shapeq",
	Name:      "delay_requests_total",
	Help:      "Delay service requests by kind and outcome.",
}, []string{"kind", "outcome"})

// ─── Notifications ──────────────────────────────────────────────────────────

// EventsDropped tracks events not delivered to a slow subscriber.
var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shapeq",
	Name:      "events_dropped_total",
	Help:      "Scheduler events dropped because a subscriber buffer was full.",
}, []string{"scheduler"})
