// Package redisstream implements the stream transport on top of Redis
// pub/sub. Persistent publishes are additionally appended to a capped list so
// that late subscribers can replay recent messages.
package redisstream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/establishment/cerberus/pkg/transport"
)

const (
	// messageCacheKeyPrefix is where persistent publishes are retained.
	messageCacheKeyPrefix = "stream-cache:"

	defaultMessageCacheSize = 256
)

type Transport struct {
	client           *redis.Client
	messageCacheSize int64
}

var _ transport.Transport = (*Transport)(nil)

type TransportOpt func(t *Transport)

// WithMessageCacheSize caps how many persistent messages are retained per
// stream.
func WithMessageCacheSize(n int64) TransportOpt {
	return func(t *Transport) {
		t.messageCacheSize = n
	}
}

// New connects to the Redis server at addr.
func New(addr, password string, db int, opts ...TransportOpt) *Transport {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *redis.Client, opts ...TransportOpt) *Transport {
	t := &Transport{
		client:           client,
		messageCacheSize: defaultMessageCacheSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Subscribe(ctx context.Context, stream string) (transport.Subscription, error) {
	pubsub := t.client.Subscribe(ctx, stream)

	// Force the SUBSCRIBE round trip now so connection failures surface at
	// subscribe time, not on the first Next.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %q: %w", stream, err)
	}

	return &subscription{pubsub: pubsub}, nil
}

func (t *Transport) Publisher(ctx context.Context) (transport.Publisher, error) {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("publisher ping: %w", err)
	}
	return &publisher{client: t.client, messageCacheSize: t.messageCacheSize}, nil
}

func (t *Transport) Close() error {
	return t.client.Close()
}

type subscription struct {
	pubsub *redis.PubSub
}

func (s *subscription) Next(ctx context.Context) (transport.Message, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return transport.Message{}, fmt.Errorf("receive message: %w", err)
	}
	return transport.Message{Stream: msg.Channel, Payload: []byte(msg.Payload)}, nil
}

func (s *subscription) Close() error {
	return s.pubsub.Close()
}

type publisher struct {
	client           *redis.Client
	messageCacheSize int64
}

func (p *publisher) Publish(ctx context.Context, stream string, payload []byte, persistent bool) error {
	if !persistent {
		if err := p.client.Publish(ctx, stream, payload).Err(); err != nil {
			return fmt.Errorf("publish to %q: %w", stream, err)
		}
		return nil
	}

	cacheKey := messageCacheKeyPrefix + stream
	tx := p.client.TxPipeline()
	tx.Publish(ctx, stream, payload)
	tx.RPush(ctx, cacheKey, payload)
	tx.LTrim(ctx, cacheKey, -p.messageCacheSize, -1)
	if _, err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %q: %w", stream, err)
	}
	return nil
}

func (p *publisher) Close() error {
	// The underlying client is shared with the transport; there is nothing
	// per-publisher to release.
	return nil
}
