// Package queue implements the bounded command queue and the fixed-size
// worker pool that drains it. The queue is the synchronization point between
// ingestion and execution: enqueueing past capacity blocks the producer, so
// backpressure propagates to the transport instead of growing memory.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/establishment/cerberus/internal/build"
	"github.com/establishment/cerberus/pkg/logger"
)

const (
	// DefaultWorkers is the number of concurrent handler executions per
	// command family.
	DefaultWorkers = 64

	// DefaultCapacity is the number of decoded commands that may wait for a
	// worker before the producer blocks.
	DefaultCapacity = 4096
)

var (
	commandsProcessedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "commands_processed_total",
		Help:      "Number of commands pulled off the queue, by family and outcome.",
	}, []string{"family", "outcome"})

	handlerDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "handler_duration_ms",
		Help:      "Time spent executing one command handler.",
		Buckets:   []float64{1, 3, 5, 10, 25, 50, 100, 1000, 5000},
	}, []string{"family"})

	queueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: build.ProjectName,
		Name:      "queue_depth",
		Help:      "Commands sitting in the queue waiting for a worker.",
	}, []string{"family"})
)

// HandlerFunc executes one command. Returned errors are logged at the worker
// boundary and never stop the worker.
type HandlerFunc[T any] func(ctx context.Context, job T) error

// Pool is a bounded FIFO of jobs drained by a fixed set of workers. A job is
// taken by exactly one worker; a panic inside a handler is caught, counted
// and logged, and the worker loops back to the queue.
type Pool[T any] struct {
	family   string
	handle   HandlerFunc[T]
	jobs     chan T
	logger   logger.Logger
	workers  int
	capacity int

	cancel   context.CancelFunc
	group    *pool.ContextPool
	stopOnce sync.Once
}

type PoolOpt[T any] func(p *Pool[T])

// WithWorkers sets the number of concurrent workers.
func WithWorkers[T any](n int) PoolOpt[T] {
	return func(p *Pool[T]) {
		p.workers = n
	}
}

// WithCapacity sets the queue capacity. Fixed at construction; never resized.
func WithCapacity[T any](n int) PoolOpt[T] {
	return func(p *Pool[T]) {
		p.capacity = n
	}
}

func WithLogger[T any](l logger.Logger) PoolOpt[T] {
	return func(p *Pool[T]) {
		p.logger = l
	}
}

func NewPool[T any](family string, handle HandlerFunc[T], opts ...PoolOpt[T]) *Pool[T] {
	p := &Pool[T]{
		family:   family,
		handle:   handle,
		logger:   logger.NewNoopLogger(),
		workers:  DefaultWorkers,
		capacity: DefaultCapacity,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.jobs = make(chan T, p.capacity)
	return p
}

// Start spawns the workers. They run until Stop is called or ctx is
// canceled; either way each worker finishes its in-flight job first, and
// whatever is still queued is dropped.
func (p *Pool[T]) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	group := pool.New().
		WithContext(runCtx).
		WithFirstError().
		WithMaxGoroutines(p.workers)
	for i := 0; i < p.workers; i++ {
		group.Go(func(ctx context.Context) error {
			p.runWorker(ctx)
			return nil
		})
	}
	p.group = group
}

// Enqueue blocks until a queue slot frees up, then hands the job to the
// queue. It reports false when ctx was canceled before a slot was available;
// a job is never dropped silently for capacity reasons.
func (p *Pool[T]) Enqueue(ctx context.Context, job T) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case p.jobs <- job:
		queueDepthGauge.WithLabelValues(p.family).Set(float64(len(p.jobs)))
		return true
	}
}

// Depth is the number of jobs currently waiting for a worker.
func (p *Pool[T]) Depth() int {
	return len(p.jobs)
}

// Stop signals the workers to exit and waits for in-flight jobs to finish.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.group != nil {
			_ = p.group.Wait()
		}
	})
}

func (p *Pool[T]) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			queueDepthGauge.WithLabelValues(p.family).Set(float64(len(p.jobs)))
			// ctx cancellation only stops the dequeue loop. The job already
			// in hand runs under a live context so a stop signal never
			// interrupts it mid-command.
			p.process(context.WithoutCancel(ctx), job)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, job T) {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			p.logger.Error("handler panicked",
				zap.String("family", p.family),
				zap.Any("panic", r),
			)
		}
		commandsProcessedCounter.WithLabelValues(p.family, outcome).Inc()
	}()

	start := time.Now()
	err := p.handle(ctx, job)
	handlerDurationHistogram.WithLabelValues(p.family).Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		outcome = "error"
		p.logger.Error("handler failed",
			zap.String("family", p.family),
			zap.Error(err),
		)
	}
}
