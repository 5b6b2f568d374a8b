package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/logger"
	"github.com/okian/restwell/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultMaxTries       = 3
	defaultInitialBackoff = 50 * time.Millisecond
	maxBackoff            = 2 * time.Second
)

// ErrPermanent marks a persist failure that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Persister writes one history event to durable storage.
type Persister interface {
	Persist(ctx context.Context, ev model.HistoryEvent) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.HistoryEvent
}

// InMemoryWorker drains a queue into a Persister.
type InMemoryWorker struct {
	queue     Queue
	persister Persister
	name      string
	logger    logger.Logger

	maxTries       uint
	initialBackoff time.Duration
	onFailure      func(model.HistoryEvent, error)

	active *atomic.Int64
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Persister, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:          q,
		persister:      p,
		name:           "worker",
		logger:         logger.Nop(),
		maxTries:       defaultMaxTries,
		initialBackoff: defaultInitialBackoff,
		active:         new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run consumes events until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) error {
	for ev := range w.queue.Dequeue(ctx) {
		// Failures are logged and reported through the hook; the worker
		// keeps consuming.
		_ = w.process(ctx, ev)
	}
	return nil
}

func (w *InMemoryWorker) process(ctx context.Context, ev model.HistoryEvent) error { //nolint:gocritic // hugeParam: events arrive by value from the channel
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialBackoff
	b.MaxInterval = maxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := w.persister.Persist(ctx, ev)
		if errors.Is(err, ErrPermanent) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.maxTries))
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "persist")
		w.logger.Error(ctx, "failed to persist history event",
			logger.String("event_id", ev.ID),
			logger.String("kind", ev.Kind.String()),
			logger.String("user_id", ev.UserID()),
			logger.Error(err),
		)
		if w.onFailure != nil {
			w.onFailure(ev, err)
		}
		return fmt.Errorf("persist %s %s: %w", ev.Kind, ev.ID, err)
	}

	metrics.RecordHistoryEvent(ev.Kind.String())
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	closer  interface{ Close() error }
	logger  logger.Logger

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewPool creates workerCount workers. A non-positive count uses one worker
// per CPU. Worker options are applied to every worker.
func NewPool(workerCount int, q Queue, p Persister, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Nop(),
	}
	if c, ok := q.(interface{ Close() error }); ok {
		pool.closer = c
	}

	active := new(atomic.Int64)
	for i := range pool.workers {
		w := NewInMemoryWorker(q, p, append(slices.Clone(opts), WithName("worker-"+strconv.Itoa(i)))...)
		w.active = active
		pool.workers[i] = w
	}
	if len(pool.workers) > 0 {
		pool.logger = pool.workers[0].logger
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	for _, w := range p.workers {
		p.group.Go(func() error { return w.Run(ctx) })
	}
}

// Shutdown closes the queue and waits for workers to drain it. If ctx
// expires first the workers are cancelled and pending events are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if p.group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
