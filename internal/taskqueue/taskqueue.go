// Package taskqueue runs units of work in FIFO order with bounded
// concurrency. A failing or panicking unit is reported and never affects
// the others.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lirantal/devrel-cfp-committee/internal/logging"
)

// ErrPanic wraps a recovered panic from a unit.
var ErrPanic = errors.New("task panicked")

// Worker processes one unit.
type Worker[T any] func(ctx context.Context, item T) error

// Stats counts units by outcome.
type Stats struct {
	Pushed    int
	Completed int
	Failed    int
	Discarded int
	Pending   int
	Active    int
}

type options struct {
	name    string
	logger  *logging.Logger
	onError func(err error)
	ctx     context.Context
}

// Option configures a Queue.
type Option func(*options)

// WithName sets the queue name used in log lines.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger used by the default error handler.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorHandler replaces the default handler, which logs the error.
func WithErrorHandler(fn func(err error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithContext sets the context units derive from. Its values are kept but
// its cancellation is not: a started unit always runs to completion.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// Queue is a FIFO scheduler with at most concurrency units in flight.
type Queue[T any] struct {
	worker      Worker[T]
	concurrency int
	opts        options
	ctx         context.Context

	mu      sync.Mutex
	pending []T
	active  int
	closed  bool
	busy    bool
	idle    chan struct{}
	stats   Stats
}

// New creates a queue. concurrency < 1 is treated as 1.
func New[T any](concurrency int, worker Worker[T], opts ...Option) *Queue[T] {
	if concurrency < 1 {
		concurrency = 1
	}
	o := options{name: "taskqueue", logger: logging.Nop(), ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onError == nil {
		logger := o.logger
		name := o.name
		o.onError = func(err error) {
			logger.Error("task failed", "queue", name, "error", err)
		}
	}

	idle := make(chan struct{})
	close(idle)

	return &Queue[T]{
		worker:      worker,
		concurrency: concurrency,
		opts:        o,
		ctx:         context.WithoutCancel(o.ctx),
		idle:        idle,
	}
}

// Push enqueues a unit. It returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, item)
	q.stats.Pushed++
	if !q.busy {
		q.busy = true
		q.idle = make(chan struct{})
	}
	q.dispatch()
	return true
}

// Drained returns a channel that is closed once nothing is pending or in
// flight. When the queue is already idle the channel is closed.
func (q *Queue[T]) Drained() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

// Close stops accepting work and discards units that have not started.
// In-flight units finish normally. It returns the number discarded.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	n := len(q.pending)
	q.pending = nil
	q.stats.Discarded += n
	q.settle()
	return n
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Pending = len(q.pending)
	s.Active = q.active
	return s
}

// dispatch starts pending units up to the concurrency limit. Callers hold mu.
func (q *Queue[T]) dispatch() {
	for q.active < q.concurrency && len(q.pending) > 0 {
		item := q.pending[0]
		var zero T
		q.pending[0] = zero
		q.pending = q.pending[1:]
		q.active++
		go q.run(item)
	}
}

// settle closes the idle channel when the queue has gone quiet. Callers hold mu.
func (q *Queue[T]) settle() {
	if q.busy && q.active == 0 && len(q.pending) == 0 {
		q.busy = false
		close(q.idle)
	}
}

func (q *Queue[T]) run(item T) {
	err := q.call(item)
	if err != nil {
		q.opts.onError(err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	if err != nil {
		q.stats.Failed++
	} else {
		q.stats.Completed++
	}
	q.dispatch()
	q.settle()
}

func (q *Queue[T]) call(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return q.worker(q.ctx, item)
}

// Wait blocks until the queue drains, an error arrives on fatal, or ctx is
// done. The last two close the queue and wait for in-flight units. An error
// sent by a unit that finished as the queue drained is still returned.
func (q *Queue[T]) Wait(ctx context.Context, fatal <-chan error) (interrupted bool, err error) {
	select {
	case <-q.Drained():
	case err = <-fatal:
		q.Close()
		<-q.Drained()
		return false, err
	case <-ctx.Done():
		interrupted = true
		q.Close()
		<-q.Drained()
	}

	select {
	case err = <-fatal:
	default:
	}
	return interrupted, err
}
