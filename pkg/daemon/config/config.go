// Package config holds the daemon configuration and its defaults.
package config

import (
	"fmt"
	"time"

	"github.com/establishment/cerberus/internal/router"
)

const (
	// DefaultWorkers is the worker count per command family.
	DefaultWorkers = 64

	// DefaultQueueCapacity bounds how many decoded commands may wait for a
	// worker per family.
	DefaultQueueCapacity = 4096
)

type LogConfig struct {
	// Format is one of ["text", "json"].
	Format string

	// Level is one of ["none", "debug", "info", "warn", "error", "panic", "fatal"].
	Level string
}

type RedisConfig struct {
	// Addr is the host:port of the Redis server backing the stream
	// transport and the session store.
	Addr string

	Password string
	DB       int
}

type TransportConfig struct {
	// Engine is one of ["redis", "memory"]. The memory engine is in-process
	// only and meant for development.
	Engine string

	Redis RedisConfig

	// MessageCacheSize caps how many persistent messages are retained per
	// stream by the transport.
	MessageCacheSize int64
}

type DatastoreConfig struct {
	// Engine is one of ["postgres", "none"]. With "none" every user lookup
	// answers "not found".
	Engine string

	// URI is the connection uri of the user store (for the 'postgres' engine).
	URI string
}

type CacheConfig struct {
	// UserTTL is how long a user lookup, positive or negative, stays fresh.
	UserTTL time.Duration

	// UserMaxSize caps the user cache element count.
	UserMaxSize int64
}

type MetricsConfig struct {
	// Enabled exposes prometheus metrics on the '/metrics' endpoint.
	Enabled bool

	// Addr is the host:port address to serve the metrics server on.
	Addr string
}

type Config struct {
	// Workers is the number of concurrent handler executions per command
	// family.
	Workers int

	// QueueCapacity is the fixed capacity of each family's command queue.
	// Ingestion blocks when the queue is full; commands are never dropped
	// for capacity reasons.
	QueueCapacity int

	// ReconnectBackoff is the fixed interval slept before re-establishing
	// the subscription and publisher after a transport failure.
	ReconnectBackoff time.Duration

	// PublicStreamPrefixes name the streams guests may subscribe to.
	PublicStreamPrefixes []string

	// StreamMatchers configure the presence router, in matching order.
	StreamMatchers []router.MatcherConfig

	Log       LogConfig
	Transport TransportConfig
	Datastore DatastoreConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
}

// DefaultConfig is the base configuration before config file, env vars and
// flags are layered on top.
func DefaultConfig() *Config {
	return &Config{
		Workers:              DefaultWorkers,
		QueueCapacity:        DefaultQueueCapacity,
		ReconnectBackoff:     1 * time.Second,
		PublicStreamPrefixes: []string{"global-"},
		StreamMatchers:       router.DefaultMatcherConfigs(),
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Transport: TransportConfig{
			Engine: "redis",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			MessageCacheSize: 256,
		},
		Datastore: DatastoreConfig{
			Engine: "none",
		},
		Cache: CacheConfig{
			UserTTL:     30 * time.Second,
			UserMaxSize: 10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
	}
}

// Verify checks that the configuration is sane before the daemon starts.
func (c *Config) Verify() error {
	if c.Workers <= 0 {
		return fmt.Errorf("config 'workers' must be > 0")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config 'queueCapacity' must be > 0")
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("config 'reconnectBackoff' must be > 0")
	}
	if c.Cache.UserTTL <= 0 {
		return fmt.Errorf("config 'cache.userTTL' must be > 0")
	}
	if c.Cache.UserMaxSize <= 0 {
		return fmt.Errorf("config 'cache.userMaxSize' must be > 0")
	}

	switch c.Transport.Engine {
	case "redis":
		if c.Transport.Redis.Addr == "" {
			return fmt.Errorf("config 'transport.redis.addr' is required for the 'redis' engine")
		}
	case "memory":
	default:
		return fmt.Errorf("transport engine '%s' is unsupported", c.Transport.Engine)
	}

	switch c.Datastore.Engine {
	case "postgres":
		if c.Datastore.URI == "" {
			return fmt.Errorf("config 'datastore.uri' is required for the 'postgres' engine")
		}
	case "none":
	default:
		return fmt.Errorf("datastore engine '%s' is unsupported", c.Datastore.Engine)
	}

	if _, err := router.FromConfigs(c.StreamMatchers); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	switch c.Log.Level {
	case "none", "debug", "info", "warn", "error", "panic", "fatal":
	default:
		return fmt.Errorf("config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("config 'metrics.addr' is required when metrics are enabled")
	}

	return nil
}
