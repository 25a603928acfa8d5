// Package worker runs market update cycles off the trigger queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/champstock/internal/adapters/mq/queue"
	"github.com/okian/champstock/pkg/logger"
	"github.com/okian/champstock/pkg/metrics"
)

const (
	defaultWorkerCount  = 4
	poolShutdownTimeout = 30 * time.Second
)

// Handler runs one update cycle for a trigger.
type Handler interface {
	Handle(ctx context.Context, t queue.Trigger) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t queue.Trigger) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, t queue.Trigger) error { return f(ctx, t) }

// Queue defines how workers receive triggers.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Trigger
}

// Worker processes triggers until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current cycle.
	Shutdown(ctx context.Context) error
}

// Stats are running totals of one worker or a pool.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	triggers <-chan queue.Trigger
	handler  Handler
	name     string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from triggers.
func NewInMemoryWorker(triggers <-chan queue.Trigger, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		triggers: triggers,
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-w.triggers:
			if !ok {
				return
			}
			w.process(ctx, t)
		}
	}
}

// Shutdown stops the worker after its current cycle.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns the worker's running totals.
func (w *InMemoryWorker) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load()}
}

func (w *InMemoryWorker) process(ctx context.Context, t queue.Trigger) {
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "update cycle panicked",
				logger.Int64("market_id", t.MarketID),
				logger.Any("panic", r))
		}
	}()

	w.logger.Debug(ctx, "trigger received",
		logger.Int64("market_id", t.MarketID),
		logger.String("source", t.Source),
		logger.Duration("queued_for", time.Since(t.EnqueuedAt)))

	if err := w.handler.Handle(ctx, t); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "cycle_error")
		w.logger.Error(ctx, "update cycle failed",
			logger.Int64("market_id", t.MarketID),
			logger.Error(err))
		return
	}
	w.processed.Add(1)
}

// Pool manages multiple workers sharing one dequeue channel.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	handler Handler
	cancel  context.CancelFunc
	logger  logger.Logger
}

// NewPool creates a worker pool. A count below one uses the default.
func NewPool(workerCount int, q Queue, handler Handler, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		handler: handler,
		logger:  log,
	}
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	triggers := p.queue.Dequeue(ctx)
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(triggers, p.handler,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger))
		go p.workers[i].Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stats sums the totals of every worker.
func (p *Pool) Stats() Stats {
	var s Stats
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		ws := w.Stats()
		s.Processed += ws.Processed
		s.Failed += ws.Failed
	}
	return s
}

// Shutdown closes the queue, lets workers finish their current cycle and stops them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if w == nil {
			continue
		}
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
