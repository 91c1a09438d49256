// Package transport abstracts the pub/sub stream layer the daemon consumes
// requests from and publishes answers to. Delivery guarantees are whatever
// the underlying transport provides; the daemon assumes at-most-once.
package transport

import "context"

// Message is one raw inbound payload together with the stream it arrived on.
type Message struct {
	Stream  string
	Payload []byte
}

// Subscription is a live subscription to a single stream. Next blocks until a
// message arrives, the context is canceled, or the transport fails.
type Subscription interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Publisher publishes raw payloads to arbitrary streams. When persistent is
// true the transport additionally retains the payload for late subscribers,
// if it supports retention at all.
type Publisher interface {
	Publish(ctx context.Context, stream string, payload []byte, persistent bool) error
	Close() error
}

// Transport hands out subscriptions and publishers. Both are invalidated and
// re-established by the ingestion loop after any transport error.
type Transport interface {
	Subscribe(ctx context.Context, stream string) (Subscription, error)
	Publisher(ctx context.Context) (Publisher, error)
}
