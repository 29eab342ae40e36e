package scheduler

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/metrics"
)

// record is one pending concurrent task. It owns its timer; a nil timer
// means the record has been settled (completed or cancelled).
type record struct {
	task  domain.TaskInstance
	timer clockwork.Timer
}

// Concurrent runs every task on an independent timer. Durations never
// accumulate: two tasks submitted together finish after their own
// service duration.
type Concurrent struct {
	catalog *catalog.Catalog
	clock   clockwork.Clock
	logger  *zap.Logger
	hub     *hub
	session string
	count   counters

	mu        sync.Mutex
	seq       uint64
	pending   []*record // submission order
	completed []domain.TaskInstance
	closed    bool
}

// NewConcurrent creates a concurrent scheduler over cat.
func NewConcurrent(cat *catalog.Catalog, opts ...Option) *Concurrent {
	o := buildOptions(NameConcurrent, opts)
	return &Concurrent{
		catalog: cat,
		clock:   o.clock,
		logger:  o.logger,
		hub:     newHub(NameConcurrent, o.logger),
		session: uuid.NewString(),
	}
}

// Name returns "concurrent".
func (s *Concurrent) Name() string { return NameConcurrent }

// Session identifies this scheduler instance for the journal.
func (s *Concurrent) Session() string { return s.session }

// ─── Transitions ────────────────────────────────────────────────────────────

// Submit queues a task and arms its timer.
func (s *Concurrent) Submit(kind domain.TaskKind) (domain.TaskInstance, error) {
	entry, err := s.catalog.Lookup(kind)
	if err != nil {
		return domain.TaskInstance{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.TaskInstance{}, domain.ErrSchedulerClosed
	}

	s.seq++
	task := domain.TaskInstance{
		ID:          domain.TaskID(kind, s.seq),
		Kind:        kind,
		Label:       entry.Label,
		SubmittedAt: s.clock.Now(),
	}
	rec := &record{task: task}
	s.pending = append(s.pending, rec)
	// The callback takes s.mu, so it cannot observe rec before timer is set.
	rec.timer = s.clock.AfterFunc(entry.ServiceDuration, func() { s.onTimerFired(rec) })

	s.count.submitted.Add(1)
	metrics.TasksSubmitted.WithLabelValues(NameConcurrent, string(kind)).Inc()
	s.updateGaugesLocked()
	s.publishLocked(domain.EventQueued, task, "")

	s.logger.Debug("task queued",
		zap.String("task_id", task.ID),
		zap.Duration("duration", entry.ServiceDuration))
	return task, nil
}

// onTimerFired moves a task from the queue to the completed list.
func (s *Concurrent) onTimerFired(rec *record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || rec.timer == nil {
		return // cancelled at teardown while the callback was racing
	}
	idx := slices.Index(s.pending, rec)
	if idx < 0 {
		return
	}
	s.pending = slices.Delete(s.pending, idx, idx+1)
	rec.timer = nil

	task := rec.task
	task.CompletedAt = s.clock.Now()
	s.completed = append(s.completed, task)

	s.count.completed.Add(1)
	metrics.TasksCompleted.WithLabelValues(NameConcurrent, string(task.Kind)).Inc()
	s.updateGaugesLocked()
	s.publishLocked(domain.EventCompleted, task, "")

	s.logger.Debug("task completed",
		zap.String("task_id", task.ID),
		zap.Duration("elapsed", task.Elapsed()))
}

// Close cancels every pending timer. Pending tasks are discarded and never
// reach the completed list. Closing twice is a no-op.
func (s *Concurrent) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	dropped := len(s.pending)
	for _, rec := range s.pending {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
	}
	s.pending = nil

	s.count.dropped.Add(int64(dropped))
	metrics.TasksDropped.WithLabelValues(NameConcurrent).Add(float64(dropped))
	s.updateGaugesLocked()
	s.hub.close()
	s.mu.Unlock()

	s.logger.Debug("scheduler closed", zap.Int("dropped", dropped))
	return nil
}

// ─── Observation ────────────────────────────────────────────────────────────

// Snapshot returns the current state. A concurrent task is in flight for
// as long as it sits in the queue, so InFlight is always empty.
func (s *Concurrent) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers an observer of every transition.
func (s *Concurrent) Subscribe(buffer int) (<-chan domain.Event, func()) {
	return s.hub.subscribe(buffer)
}

// Stats returns lifetime counters.
func (s *Concurrent) Stats() Stats {
	return s.count.stats(NameConcurrent, s.session, s.hub.size())
}

// Pending returns the number of armed timers.
func (s *Concurrent) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ─── Internal ───────────────────────────────────────────────────────────────

func (s *Concurrent) snapshotLocked() domain.Snapshot {
	queue := make([]domain.TaskInstance, len(s.pending))
	for i, rec := range s.pending {
		queue[i] = rec.task
	}
	return domain.Snapshot{
		Scheduler: NameConcurrent,
		Queue:     queue,
		InFlight:  []domain.TaskInstance{},
		Completed: cloneTasks(s.completed),
		Failed:    []domain.TaskInstance{},
	}
}

func (s *Concurrent) publishLocked(t domain.EventType, task domain.TaskInstance, errText string) {
	s.hub.publish(domain.Event{
		Type:      t,
		Scheduler: NameConcurrent,
		Task:      task,
		Error:     errText,
		At:        s.clock.Now(),
		State:     s.snapshotLocked(),
	})
}

func (s *Concurrent) updateGaugesLocked() {
	metrics.QueueDepth.WithLabelValues(NameConcurrent).Set(float64(len(s.pending)))
	metrics.TasksInFlight.WithLabelValues(NameConcurrent).Set(float64(len(s.pending)))
}
