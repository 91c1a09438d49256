package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/pkg/logger"
	"github.com/establishment/cerberus/pkg/transport"
	"github.com/establishment/cerberus/pkg/transport/memory"
)

// flakyTransport fails the first subscription's first Next, forcing the
// ingestion loop through its reconnect path.
type flakyTransport struct {
	inner *memory.Transport

	mu             sync.Mutex
	subscribeCalls int
}

func (f *flakyTransport) Subscribe(ctx context.Context, stream string) (transport.Subscription, error) {
	f.mu.Lock()
	f.subscribeCalls++
	first := f.subscribeCalls == 1
	f.mu.Unlock()

	sub, err := f.inner.Subscribe(ctx, stream)
	if err != nil {
		return nil, err
	}
	if first {
		return &failingSubscription{inner: sub}, nil
	}
	return sub, nil
}

func (f *flakyTransport) Publisher(ctx context.Context) (transport.Publisher, error) {
	return f.inner.Publisher(ctx)
}

func (f *flakyTransport) subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

type failingSubscription struct {
	inner transport.Subscription
}

func (s *failingSubscription) Next(ctx context.Context) (transport.Message, error) {
	return transport.Message{}, errors.New("connection reset")
}

func (s *failingSubscription) Close() error {
	return s.inner.Close()
}

func publishRaw(tr transport.Transport, stream string, payload []byte) {
	ctx := context.Background()
	pub, err := tr.Publisher(ctx)
	if err != nil {
		return
	}
	_ = pub.Publish(ctx, stream, payload, false)
}

func publishRequest(tr transport.Transport, stream string, doc any) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return
	}
	publishRaw(tr, stream, payload)
}

func firstResponse(t *testing.T, mem *memory.Transport, stream string) map[string]any {
	t.Helper()
	msgs := mem.Published(stream)
	require.NotEmpty(t, msgs)
	return decodeResponse(t, msgs[0].Payload)
}

func TestProcessorEndToEnd(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	mem := memory.New()
	h := NewUserIdentification(&fakeSessions{}, logger.NewNoopLogger())
	p := New(h, mem,
		WithWorkers(4),
		WithQueueCapacity(16),
		WithReconnectBackoff(5*time.Millisecond),
	)
	require.Equal(t, "meta-user-identification-q", p.RequestStream())

	p.Start(context.Background())
	defer p.Stop()

	request := map[string]any{"sessionKey": "abc", "responseStream": "r"}
	require.Eventually(t, func() bool {
		publishRequest(mem, p.RequestStream(), request)
		return len(mem.Published("r")) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, map[string]any{
		"sessionKey": "abc",
		"userId":     float64(-1),
	}, firstResponse(t, mem, "r"))
}

func TestProcessorDropsUndecodableMessages(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	mem := memory.New()
	h := NewUserIdentification(&fakeSessions{sessions: map[string]int64{"abc": 12}}, logger.NewNoopLogger())
	p := New(h, mem,
		WithWorkers(1),
		WithQueueCapacity(16),
		WithReconnectBackoff(5*time.Millisecond),
	)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		publishRaw(mem, p.RequestStream(), []byte("{{{not json"))
		publishRequest(mem, p.RequestStream(), map[string]any{"sessionKey": "abc", "responseStream": "r"})
		return len(mem.Published("r")) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, map[string]any{
		"sessionKey": "abc",
		"userId":     float64(12),
	}, firstResponse(t, mem, "r"))
}

func TestProcessorReconnectsAfterTransportFailure(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	flaky := &flakyTransport{inner: memory.New()}
	h := NewUserIdentification(&fakeSessions{}, logger.NewNoopLogger())
	p := New(h, flaky,
		WithWorkers(1),
		WithQueueCapacity(16),
		WithReconnectBackoff(5*time.Millisecond),
	)

	p.Start(context.Background())
	defer p.Stop()

	request := map[string]any{"sessionKey": "zzz", "responseStream": "r"}
	require.Eventually(t, func() bool {
		publishRequest(flaky.inner, p.RequestStream(), request)
		return len(flaky.inner.Published("r")) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, flaky.subscribes(), 2)
}

// slowHandler blocks mid-command until released, then publishes its answer.
type slowHandler struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (h *slowHandler) Family() string { return "echo" }

func (h *slowHandler) Handle(ctx context.Context, cmd command.Command, pub transport.Publisher) error {
	h.once.Do(func() { close(h.started) })
	<-h.release
	return pub.Publish(ctx, "echo-done", []byte(`{"ok":true}`), false)
}

func TestProcessorStopFinishesInFlightCommand(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	mem := memory.New()
	h := &slowHandler{started: make(chan struct{}), release: make(chan struct{})}
	p := New(h, mem,
		WithWorkers(1),
		WithQueueCapacity(1),
		WithReconnectBackoff(5*time.Millisecond),
	)

	p.Start(context.Background())

	require.Eventually(t, func() bool {
		publishRequest(mem, p.RequestStream(), map[string]any{})
		select {
		case <-h.started:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	// Release the handler only once Stop is already underway; the command in
	// flight must still complete and publish its answer.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(h.release)
	}()
	p.Stop()

	require.NotEmpty(t, mem.Published("echo-done"))
}

func TestProcessorStopIsIdempotent(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	mem := memory.New()
	h := NewUserIdentification(&fakeSessions{}, logger.NewNoopLogger())
	p := New(h, mem, WithWorkers(1), WithQueueCapacity(1))

	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
