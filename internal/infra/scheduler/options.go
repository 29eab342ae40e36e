package scheduler

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Scheduler names, used as metric labels and in events.
const (
	NameConcurrent = "concurrent"
	NameSequential = "sequential"
)

// DefaultSubscriberBuffer is used when Subscribe is called with buffer < 1.
const DefaultSubscriberBuffer = 64

type options struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

// Option customizes a scheduler.
type Option func(*options)

// WithClock injects the clock used for timers and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(name string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("scheduler." + name)
	return o
}
