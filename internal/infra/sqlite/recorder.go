package sqlite

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/domain"
)

// Source is a scheduler the recorder can follow.
type Source interface {
	Name() string
	Session() string
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// recorderBuffer is larger than the API default so bursts of submissions
// are journaled even while a write is in progress.
const recorderBuffer = 256

// Recorder copies every event of one scheduler into the journal.
type Recorder struct {
	db      *DB
	src     Source
	logger  *zap.Logger
	unsub   func()
	done    chan struct{}
	stopped sync.Once
}

// NewRecorder subscribes to src immediately and starts writing rows.
// The recorder stops on its own when src is closed.
func NewRecorder(db *DB, src Source, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	events, unsub := src.Subscribe(recorderBuffer)
	r := &Recorder{
		db:     db,
		src:    src,
		logger: logger.Named("journal").With(zap.String("scheduler", src.Name())),
		unsub:  unsub,
		done:   make(chan struct{}),
	}
	go r.run(events)
	return r
}

func (r *Recorder) run(events <-chan domain.Event) {
	defer close(r.done)
	session := r.src.Session()
	for ev := range events {
		if err := r.db.Append(context.Background(), session, ev); err != nil {
			r.logger.Warn("journal write failed", zap.Error(err))
		}
	}
}

// Stop unsubscribes and waits for pending rows to be written.
func (r *Recorder) Stop() {
	r.stopped.Do(r.unsub)
	<-r.done
}

// Done is closed once the recorder has written its last row.
func (r *Recorder) Done() <-chan struct{} { return r.done }
