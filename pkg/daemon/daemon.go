// Package daemon wires the three command processors to the stream transport
// and the identity collaborators, and starts/stops them together.
package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/establishment/cerberus/internal/identity"
	"github.com/establishment/cerberus/internal/processor"
	"github.com/establishment/cerberus/internal/router"
	"github.com/establishment/cerberus/pkg/daemon/config"
	"github.com/establishment/cerberus/pkg/logger"
	"github.com/establishment/cerberus/pkg/transport"
	"github.com/establishment/cerberus/pkg/transport/memory"
	"github.com/establishment/cerberus/pkg/transport/redisstream"
)

// Daemon owns one processor per command family. The processors are fully
// independent pipelines; the daemon only starts and stops them together.
type Daemon struct {
	config *config.Config
	logger logger.Logger

	transport transport.Transport
	sessions  identity.SessionResolver
	users     identity.UserFetcher
	oracle    identity.PermissionOracle

	processors []*processor.Processor
	closers    []func()
	stopOnce   sync.Once
}

type DaemonOpt func(d *Daemon)

// WithTransport overrides the transport built from the configuration.
func WithTransport(t transport.Transport) DaemonOpt {
	return func(d *Daemon) {
		d.transport = t
	}
}

// WithSessionResolver overrides the session store collaborator.
func WithSessionResolver(s identity.SessionResolver) DaemonOpt {
	return func(d *Daemon) {
		d.sessions = s
	}
}

// WithUserFetcher overrides the user store collaborator.
func WithUserFetcher(u identity.UserFetcher) DaemonOpt {
	return func(d *Daemon) {
		d.users = u
	}
}

// WithPermissionOracle overrides the permission oracle.
func WithPermissionOracle(o identity.PermissionOracle) DaemonOpt {
	return func(d *Daemon) {
		d.oracle = o
	}
}

func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...DaemonOpt) (*Daemon, error) {
	d := &Daemon{
		config: cfg,
		logger: log,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.transport == nil {
		switch cfg.Transport.Engine {
		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Transport.Redis.Addr,
				Password: cfg.Transport.Redis.Password,
				DB:       cfg.Transport.Redis.DB,
			})
			d.closers = append(d.closers, func() { _ = client.Close() })
			d.transport = redisstream.NewFromClient(client,
				redisstream.WithMessageCacheSize(cfg.Transport.MessageCacheSize),
			)
			if d.sessions == nil {
				d.sessions = identity.NewRedisSessionResolver(client)
			}
		case "memory":
			d.transport = memory.New()
		default:
			return nil, fmt.Errorf("transport engine '%s' is unsupported", cfg.Transport.Engine)
		}
	}

	if d.sessions == nil {
		d.sessions = noSessions{}
	}

	if d.users == nil {
		switch cfg.Datastore.Engine {
		case "postgres":
			store, err := identity.NewPostgresUserStore(ctx, cfg.Datastore.URI)
			if err != nil {
				return nil, err
			}
			d.closers = append(d.closers, store.Close)
			d.users = store
		case "none":
			d.users = absentUsers{}
		default:
			return nil, fmt.Errorf("datastore engine '%s' is unsupported", cfg.Datastore.Engine)
		}
	}

	if d.oracle == nil {
		d.oracle = identity.NewStreamPolicy(cfg.PublicStreamPrefixes)
	}

	streamRouter, err := router.FromConfigs(cfg.StreamMatchers)
	if err != nil {
		return nil, err
	}

	processorOpts := []processor.ProcessorOpt{
		processor.WithLogger(log),
		processor.WithWorkers(cfg.Workers),
		processor.WithQueueCapacity(cfg.QueueCapacity),
		processor.WithReconnectBackoff(cfg.ReconnectBackoff),
	}

	handlers := []processor.Handler{
		processor.NewUserIdentification(d.sessions, log),
		processor.NewSubscriptionPermission(d.users, d.oracle, log,
			processor.WithUserCacheTTL(cfg.Cache.UserTTL),
			processor.WithUserCacheSize(cfg.Cache.UserMaxSize),
		),
		processor.NewStreamPresenceEvent(streamRouter, log),
	}

	for _, h := range handlers {
		d.processors = append(d.processors, processor.New(h, d.transport, processorOpts...))
	}

	return d, nil
}

// Start launches every processor. It returns immediately; processing
// continues until Stop or ctx cancellation.
func (d *Daemon) Start(ctx context.Context) {
	for _, p := range d.processors {
		p.Start(ctx)
	}
	d.logger.Info("daemon started", zap.Int("processors", len(d.processors)))
}

// Stop shuts the processors down gracefully: in-flight commands finish,
// queued ones are dropped, then shared resources are released.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		for _, p := range d.processors {
			p.Stop()
		}
		for i := len(d.closers) - 1; i >= 0; i-- {
			d.closers[i]()
		}
		d.logger.Info("daemon stopped")
	})
}

// noSessions answers every session lookup with "no authenticated user".
type noSessions struct{}

func (noSessions) ResolveSession(ctx context.Context, sessionKey string) (int64, bool, error) {
	return 0, false, nil
}

// absentUsers is the user store of the 'none' datastore engine.
type absentUsers struct{}

func (absentUsers) FetchUserByID(ctx context.Context, id int64) (*identity.User, error) {
	return nil, nil
}
