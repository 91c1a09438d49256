// Package processor turns one inbound command stream into concurrent,
// isolated handler executions. Each Processor owns a subscription to its
// family's request stream, a bounded queue with a worker pool draining it,
// and a reconnect loop that survives any transport failure.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/establishment/cerberus/internal/build"
	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/internal/queue"
	"github.com/establishment/cerberus/pkg/logger"
	"github.com/establishment/cerberus/pkg/transport"
)

const (
	// RequestStreamSuffix is appended to a family name to form its inbound
	// stream; clients conventionally listen for answers on the matching
	// AnswerStreamSuffix stream and pass it as responseStream.
	RequestStreamSuffix = "-q"
	AnswerStreamSuffix  = "-a"

	// DefaultReconnectBackoff is how long the ingestion loop sleeps after a
	// transport failure before re-establishing the subscription and
	// publisher.
	DefaultReconnectBackoff = time.Second
)

var (
	decodeFailuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "decode_failures_total",
		Help:      "Inbound messages dropped because the payload was not a JSON object.",
	}, []string{"family"})

	transportFailuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "transport_failures_total",
		Help:      "Transport errors that forced the ingestion loop to reconnect.",
	}, []string{"family"})
)

// Handler is one command family's domain logic. Handle is invoked by a
// worker with the shared publisher; it publishes at most one response and
// may publish auxiliary side-effect messages.
type Handler interface {
	// Family names the command family; it prefixes the stream names and
	// labels the metrics.
	Family() string
	Handle(ctx context.Context, cmd command.Command, pub transport.Publisher) error
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Processor binds a Handler to the stream transport. Start spins up the
// worker pool and the ingestion loop; Stop drains in-flight commands and
// drops whatever is still queued.
type Processor struct {
	handler          Handler
	transport        transport.Transport
	logger           logger.Logger
	reconnectBackoff time.Duration

	pool *queue.Pool[command.Command]

	mu           sync.RWMutex
	subscription transport.Subscription
	publisher    transport.Publisher

	cancel   context.CancelFunc
	ingest   *pool.ContextPool
	stopOnce sync.Once

	workers       int
	queueCapacity int
}

type ProcessorOpt func(p *Processor)

func WithLogger(l logger.Logger) ProcessorOpt {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkers sets the number of concurrent handler executions.
func WithWorkers(n int) ProcessorOpt {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithQueueCapacity sets how many decoded commands may wait for a worker
// before ingestion blocks.
func WithQueueCapacity(n int) ProcessorOpt {
	return func(p *Processor) {
		p.queueCapacity = n
	}
}

// WithReconnectBackoff sets the fixed interval slept between reconnect
// attempts after a transport failure.
func WithReconnectBackoff(d time.Duration) ProcessorOpt {
	return func(p *Processor) {
		p.reconnectBackoff = d
	}
}

func New(handler Handler, t transport.Transport, opts ...ProcessorOpt) *Processor {
	p := &Processor{
		handler:          handler,
		transport:        t,
		logger:           logger.NewNoopLogger(),
		reconnectBackoff: DefaultReconnectBackoff,
		workers:          queue.DefaultWorkers,
		queueCapacity:    queue.DefaultCapacity,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.pool = queue.NewPool(handler.Family(), p.execute,
		queue.WithWorkers[command.Command](p.workers),
		queue.WithCapacity[command.Command](p.queueCapacity),
		queue.WithLogger[command.Command](p.logger),
	)
	return p
}

// RequestStream is the inbound stream this processor subscribes to.
func (p *Processor) RequestStream() string {
	return p.handler.Family() + RequestStreamSuffix
}

func (p *Processor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.pool.Start(runCtx)

	p.ingest = pool.New().
		WithContext(runCtx).
		WithFirstError().
		WithMaxGoroutines(1)
	p.ingest.Go(func(ctx context.Context) error {
		p.ingestLoop(ctx)
		return nil
	})

	p.logger.Info("processor started",
		zap.String("family", p.handler.Family()),
		zap.String("stream", p.RequestStream()),
		zap.Int("workers", p.workers),
		zap.Int("queueCapacity", p.queueCapacity),
	)
}

// Stop is cooperative: ingestion stops producing, workers finish their
// current command, queued-but-undequeued commands are dropped.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.ingest != nil {
			_ = p.ingest.Wait()
		}
		p.pool.Stop()
		p.teardown()

		if s, ok := p.handler.(interface{ Stop() }); ok {
			s.Stop()
		}

		p.logger.Info("processor stopped", zap.String("family", p.handler.Family()))
	})
}

// execute runs on a worker goroutine for each dequeued command.
func (p *Processor) execute(ctx context.Context, cmd command.Command) error {
	pub := p.currentPublisher()
	if pub == nil {
		return fmt.Errorf("no publisher available for family %q", p.handler.Family())
	}
	return p.handler.Handle(ctx, cmd, pub)
}

// ingestLoop is the reconnect state machine: Disconnected -> Connecting ->
// Connected, back to Disconnected on any transport error. Retries are
// unbounded with a fixed interval.
func (p *Processor) ingestLoop(ctx context.Context) {
	family := p.handler.Family()
	wait := backoff.NewConstantBackOff(p.reconnectBackoff)
	state := stateDisconnected

	for ctx.Err() == nil {
		switch state {
		case stateDisconnected:
			state = stateConnecting

		case stateConnecting:
			if err := p.connect(ctx); err != nil {
				p.logger.Error("transport connect failed",
					zap.String("family", family),
					zap.Error(err),
				)
				transportFailuresCounter.WithLabelValues(family).Inc()
				if !sleepContext(ctx, wait.NextBackOff()) {
					return
				}
				continue
			}
			state = stateConnected
			p.logger.Info("subscribed", zap.String("family", family), zap.String("stream", p.RequestStream()))

		case stateConnected:
			msg, err := p.currentSubscription().Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("transport receive failed",
					zap.String("family", family),
					zap.Error(err),
				)
				transportFailuresCounter.WithLabelValues(family).Inc()
				p.teardown()
				state = stateDisconnected
				if !sleepContext(ctx, wait.NextBackOff()) {
					return
				}
				continue
			}

			cmd, err := command.Decode(msg.Payload)
			if err != nil {
				// Unparseable by definition; dropped, never retried.
				p.logger.Error("dropping undecodable message",
					zap.String("family", family),
					zap.Error(err),
				)
				decodeFailuresCounter.WithLabelValues(family).Inc()
				continue
			}

			if !p.pool.Enqueue(ctx, cmd) {
				return
			}
		}
	}
}

func (p *Processor) connect(ctx context.Context) error {
	sub, err := p.transport.Subscribe(ctx, p.RequestStream())
	if err != nil {
		return err
	}
	pub, err := p.transport.Publisher(ctx)
	if err != nil {
		_ = sub.Close()
		return err
	}

	p.mu.Lock()
	p.subscription = sub
	p.publisher = pub
	p.mu.Unlock()
	return nil
}

func (p *Processor) teardown() {
	p.mu.Lock()
	sub, pub := p.subscription, p.publisher
	p.subscription, p.publisher = nil, nil
	p.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if pub != nil {
		_ = pub.Close()
	}
}

func (p *Processor) currentSubscription() transport.Subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subscription
}

func (p *Processor) currentPublisher() transport.Publisher {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.publisher
}

// sleepContext sleeps for d, returning false if ctx was canceled first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// publishJSON encodes doc and publishes it raw, with no additional envelope.
func publishJSON(ctx context.Context, pub transport.Publisher, stream string, doc any, persistent bool) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := pub.Publish(ctx, stream, payload, persistent); err != nil {
		return fmt.Errorf("publish response: %w", err)
	}
	return nil
}
