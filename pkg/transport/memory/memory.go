// Package memory implements the stream transport in process. It backs the
// "memory" transport engine, useful for development and tests; nothing is
// shared across processes and persistent publishes are only recorded.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/establishment/cerberus/pkg/transport"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

const subscriptionBuffer = 128

// PublishedMessage records one publish for inspection.
type PublishedMessage struct {
	Stream     string
	Payload    []byte
	Persistent bool
}

type Transport struct {
	mu          sync.Mutex
	subscribers map[string][]*subscription
	published   []PublishedMessage
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{
		subscribers: make(map[string][]*subscription),
	}
}

func (t *Transport) Subscribe(ctx context.Context, stream string) (transport.Subscription, error) {
	sub := &subscription{
		transport: t,
		stream:    stream,
		messages:  make(chan transport.Message, subscriptionBuffer),
		closed:    make(chan struct{}),
	}

	t.mu.Lock()
	t.subscribers[stream] = append(t.subscribers[stream], sub)
	t.mu.Unlock()
	return sub, nil
}

func (t *Transport) Publisher(ctx context.Context) (transport.Publisher, error) {
	return &publisher{transport: t}, nil
}

// Published returns every publish seen on stream, in order.
func (t *Transport) Published(stream string) []PublishedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []PublishedMessage
	for _, m := range t.published {
		if m.Stream == stream {
			out = append(out, m)
		}
	}
	return out
}

// PublishedCount returns the total number of publishes on any stream.
func (t *Transport) PublishedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.published)
}

func (t *Transport) deliver(msg transport.Message, persistent bool) {
	t.mu.Lock()
	t.published = append(t.published, PublishedMessage{
		Stream:     msg.Stream,
		Payload:    msg.Payload,
		Persistent: persistent,
	})
	subs := append([]*subscription(nil), t.subscribers[msg.Stream]...)
	t.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.messages <- msg:
		default:
			// Slow in-process subscriber; pub/sub has no delivery
			// guarantee, so the message is dropped.
		}
	}
}

func (t *Transport) remove(target *subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := t.subscribers[target.stream]
	for i, sub := range subs {
		if sub == target {
			t.subscribers[target.stream] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

type subscription struct {
	transport *Transport
	stream    string
	messages  chan transport.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *subscription) Next(ctx context.Context) (transport.Message, error) {
	select {
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case <-s.closed:
		return transport.Message{}, ErrSubscriptionClosed
	case msg := <-s.messages:
		return msg, nil
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.transport.remove(s)
		close(s.closed)
	})
	return nil
}

type publisher struct {
	transport *Transport
}

func (p *publisher) Publish(ctx context.Context, stream string, payload []byte, persistent bool) error {
	p.transport.deliver(transport.Message{Stream: stream, Payload: payload}, persistent)
	return nil
}

func (p *publisher) Close() error {
	return nil
}
