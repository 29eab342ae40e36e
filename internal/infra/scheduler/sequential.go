package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/metrics"
)

// Sequential drains a FIFO queue through a single worker that performs one
// backend round-trip at a time.
//
// Worker states:
//
//	Idle:       processing == false, no worker goroutine
//	Processing: processing == true, exactly one worker goroutine
//
// A failed backend call is not retried: the task moves to the failed list
// and the worker continues with the next queued task.
type Sequential struct {
	catalog *catalog.Catalog
	backend domain.Backend
	clock   clockwork.Clock
	logger  *zap.Logger
	hub     *hub
	session string
	count   counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	seq        uint64
	queue      []domain.TaskInstance
	inFlight   *domain.TaskInstance
	completed  []domain.TaskInstance
	failed     []domain.TaskInstance
	processing bool
	closed     bool
}

// NewSequential creates a sequential scheduler that calls backend.
func NewSequential(cat *catalog.Catalog, backend domain.Backend, opts ...Option) *Sequential {
	o := buildOptions(NameSequential, opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequential{
		catalog: cat,
		backend: backend,
		clock:   o.clock,
		logger:  o.logger,
		hub:     newHub(NameSequential, o.logger),
		session: uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns "sequential".
func (s *Sequential) Name() string { return NameSequential }

// Session identifies this scheduler instance for the journal.
func (s *Sequential) Session() string { return s.session }

// ─── Transitions ────────────────────────────────────────────────────────────

// Submit appends a task to the queue and wakes the worker if it is idle.
func (s *Sequential) Submit(kind domain.TaskKind) (domain.TaskInstance, error) {
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
	s.queue = append(s.queue, task)

	s.count.submitted.Add(1)
	metrics.TasksSubmitted.WithLabelValues(NameSequential, string(kind)).Inc()
	s.updateGaugesLocked()
	s.publishLocked(domain.EventQueued, task, "")

	if !s.processing {
		s.processing = true
		s.wg.Add(1)
		go s.work()
	}
	return task, nil
}

// work is the worker loop. It exits when the queue is empty (Idle) or the
// scheduler is closed.
func (s *Sequential) work() {
	defer s.wg.Done()
	for {
		task, ok := s.next()
		if !ok {
			return
		}

		start := s.clock.Now()
		body, err := s.backend.Fetch(s.ctx, task.Kind)
		if !s.settle(task, body, err, s.clock.Since(start)) {
			return
		}
	}
}

// next pops the queue head into the in-flight slot, or flips the gate back
// to Idle when there is nothing to do.
func (s *Sequential) next() (domain.TaskInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.queue) == 0 {
		s.processing = false
		return domain.TaskInstance{}, false
	}

	task := s.queue[0]
	s.queue[0] = domain.TaskInstance{}
	s.queue = s.queue[1:]
	s.inFlight = &task

	s.updateGaugesLocked()
	s.publishLocked(domain.EventStarted, task, "")
	return task, true
}

// settle applies the outcome of one backend call that took took. It returns
// false when the scheduler was closed while the call was in flight; the
// result is discarded and the call is not timed.
func (s *Sequential) settle(task domain.TaskInstance, body string, err error, took time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = nil
	if s.closed {
		s.processing = false
		s.logger.Debug("in-flight result discarded at teardown", zap.String("task_id", task.ID))
		return false
	}

	metrics.BackendLatency.WithLabelValues(string(task.Kind)).Observe(took.Seconds())

	if err != nil {
		s.onFailureLocked(task, err)
	} else {
		s.onResponseLocked(task, body)
	}
	s.updateGaugesLocked()
	return true
}

func (s *Sequential) onResponseLocked(task domain.TaskInstance, body string) {
	task.Label = body
	task.CompletedAt = s.clock.Now()
	s.completed = append(s.completed, task)

	s.count.completed.Add(1)
	metrics.TasksCompleted.WithLabelValues(NameSequential, string(task.Kind)).Inc()
	s.publishLocked(domain.EventCompleted, task, "")

	s.logger.Debug("task completed",
		zap.String("task_id", task.ID),
		zap.Duration("elapsed", task.Elapsed()))
}

func (s *Sequential) onFailureLocked(task domain.TaskInstance, err error) {
	task.CompletedAt = s.clock.Now()
	s.failed = append(s.failed, task)

	s.count.failed.Add(1)
	metrics.TasksFailed.WithLabelValues(string(task.Kind), failureReason(err)).Inc()
	s.publishLocked(domain.EventFailed, task, err.Error())

	s.logger.Warn("backend call failed, task dropped",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Error(err))
}

// Close discards the queue, abandons the in-flight call and waits for the
// worker to exit. Closing twice is a no-op.
func (s *Sequential) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()

	dropped := len(s.queue)
	if s.inFlight != nil {
		dropped++
	}
	s.queue = nil

	s.count.dropped.Add(int64(dropped))
	metrics.TasksDropped.WithLabelValues(NameSequential).Add(float64(dropped))
	metrics.QueueDepth.WithLabelValues(NameSequential).Set(0)
	metrics.TasksInFlight.WithLabelValues(NameSequential).Set(0)
	s.hub.close()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("scheduler closed", zap.Int("dropped", dropped))
	return nil
}

// ─── Observation ────────────────────────────────────────────────────────────

// Snapshot returns the current state.
func (s *Sequential) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers an observer of every transition.
func (s *Sequential) Subscribe(buffer int) (<-chan domain.Event, func()) {
	return s.hub.subscribe(buffer)
}

// Processing reports whether the worker is running.
func (s *Sequential) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Stats returns lifetime counters.
func (s *Sequential) Stats() Stats {
	return s.count.stats(NameSequential, s.session, s.hub.size())
}

// ─── Internal ───────────────────────────────────────────────────────────────

func (s *Sequential) snapshotLocked() domain.Snapshot {
	inFlight := []domain.TaskInstance{}
	if s.inFlight != nil {
		inFlight = append(inFlight, *s.inFlight)
	}
	return domain.Snapshot{
		Scheduler: NameSequential,
		Queue:     cloneTasks(s.queue),
		InFlight:  inFlight,
		Completed: cloneTasks(s.completed),
		Failed:    cloneTasks(s.failed),
	}
}

func (s *Sequential) publishLocked(t domain.EventType, task domain.TaskInstance, errText string) {
	s.hub.publish(domain.Event{
		Type:      t,
		Scheduler: NameSequential,
		Task:      task,
		Error:     errText,
		At:        s.clock.Now(),
		State:     s.snapshotLocked(),
	})
}

func (s *Sequential) updateGaugesLocked() {
	inFlight := 0
	if s.inFlight != nil {
		inFlight = 1
	}
	metrics.QueueDepth.WithLabelValues(NameSequential).Set(float64(len(s.queue)))
	metrics.TasksInFlight.WithLabelValues(NameSequential).Set(float64(inFlight))
}

// failureReason buckets a backend error for the failed-tasks metric.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBackendStatus):
		return "status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport"
	}
}
