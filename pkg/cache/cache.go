// Package cache provides a TTL read-through cache that also remembers
// negative lookups, so a burst of requests for the same absent key results in
// a single query against the backing store.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

const (
	defaultMaxAge      = 30 * time.Second
	defaultMaxElements = 10000
)

// Loaded is the outcome of a lookup through the cache. Found is false when
// the backing store confirmed that the key does not exist; that fact is
// cached with the same TTL as a positive result.
type Loaded[V any] struct {
	Value V
	Found bool
}

// LoaderFunc fetches a key from the backing store. found=false is a valid,
// cacheable answer; an error is never cached.
type LoaderFunc[V any] func(ctx context.Context, key string) (value V, found bool, err error)

// TTLCache is a read-through cache with expiry-on-read semantics. There is no
// background sweeper; an entry past its max age is refreshed on the next Get.
// Concurrent refreshes of the same key are allowed and resolve
// last-write-wins.
type TTLCache[V any] struct {
	ccache      *ccache.Cache[Loaded[V]]
	loader      LoaderFunc[V]
	maxAge      time.Duration
	maxElements int64
	closeOnce   *sync.Once
}

type TTLCacheOpt[V any] func(c *TTLCache[V])

// WithMaxAge sets how long an entry (positive or negative) stays fresh.
func WithMaxAge[V any](maxAge time.Duration) TTLCacheOpt[V] {
	return func(c *TTLCache[V]) {
		c.maxAge = maxAge
	}
}

// WithMaxElements caps the number of entries kept in memory.
func WithMaxElements[V any](maxElements int64) TTLCacheOpt[V] {
	return func(c *TTLCache[V]) {
		c.maxElements = maxElements
	}
}

func New[V any](loader LoaderFunc[V], opts ...TTLCacheOpt[V]) *TTLCache[V] {
	c := &TTLCache[V]{
		loader:      loader,
		maxAge:      defaultMaxAge,
		maxElements: defaultMaxElements,
		closeOnce:   &sync.Once{},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.ccache = ccache.New(ccache.Configure[Loaded[V]]().MaxSize(c.maxElements))
	return c
}

// Get returns the cached result for key if it is fresh, otherwise invokes the
// loader and caches whatever it answers, including "not found".
func (c *TTLCache[V]) Get(ctx context.Context, key string) (Loaded[V], error) {
	if item := c.ccache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	value, found, err := c.loader(ctx, key)
	if err != nil {
		var zero Loaded[V]
		return zero, err
	}

	entry := Loaded[V]{Value: value, Found: found}
	c.ccache.Set(key, entry, c.maxAge)
	return entry, nil
}

// Stop cleans resources. Safe to call more than once.
func (c *TTLCache[V]) Stop() {
	c.closeOnce.Do(func() {
		c.ccache.Stop()
	})
}
