package scheduler

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/metrics"
)

// hub fans scheduler events out to subscribers. publish never blocks:
// a subscriber with a full buffer misses the event and can resync from
// the snapshot carried by the next one.
type hub struct {
	name   string
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
}

func newHub(name string, logger *zap.Logger) *hub {
	return &hub{
		name:   name,
		logger: logger,
		subs:   make(map[int]chan domain.Event),
	}
}

// subscribe registers a new subscriber. Subscribing to a closed hub
// returns an already-closed channel.
func (h *hub) subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return ch, unsubscribe
}

// publish delivers ev to every subscriber that has room.
// Callers hold the scheduler lock so events keep transition order.
func (h *hub) publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.WithLabelValues(h.name).Inc()
			h.logger.Debug("subscriber buffer full, event dropped",
				zap.Int("subscriber", id),
				zap.String("event", string(ev.Type)),
				zap.String("task_id", ev.Task.ID))
		}
	}
}

// close closes every subscriber channel. Later subscribes get a closed channel.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// size returns the number of live subscribers.
func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
