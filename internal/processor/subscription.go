package processor

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/internal/identity"
	"github.com/establishment/cerberus/pkg/cache"
	"github.com/establishment/cerberus/pkg/logger"
	"github.com/establishment/cerberus/pkg/transport"
)

const (
	// SubscriptionPermissionFamily prefixes the permission stream pair.
	SubscriptionPermissionFamily = "meta-subscription-permissions"

	invalidRequestReason = "Invalid Cerberus request!"
	invalidStreamName    = "INVALID_STREAM_NAME"

	// DefaultUserCacheTTL bounds how stale a cached user may be when
	// answering permission checks.
	DefaultUserCacheTTL = 30 * time.Second
)

// SubscriptionPermission answers "may this user subscribe to this stream".
// User lookups go through a TTL cache shared by all workers of the family;
// both found and not-found results are cached, so a flood of checks for the
// same id, existing or not, costs one backing lookup per TTL window.
type SubscriptionPermission struct {
	users  *cache.TTLCache[*identity.User]
	oracle identity.PermissionOracle
	logger logger.Logger
}

var _ Handler = (*SubscriptionPermission)(nil)

type SubscriptionPermissionOpt func(*subscriptionPermissionSettings)

type subscriptionPermissionSettings struct {
	cacheTTL  time.Duration
	cacheSize int64
}

// WithUserCacheTTL overrides the user cache max age.
func WithUserCacheTTL(ttl time.Duration) SubscriptionPermissionOpt {
	return func(s *subscriptionPermissionSettings) {
		s.cacheTTL = ttl
	}
}

// WithUserCacheSize overrides the user cache element cap.
func WithUserCacheSize(n int64) SubscriptionPermissionOpt {
	return func(s *subscriptionPermissionSettings) {
		s.cacheSize = n
	}
}

func NewSubscriptionPermission(users identity.UserFetcher, oracle identity.PermissionOracle, l logger.Logger, opts ...SubscriptionPermissionOpt) *SubscriptionPermission {
	settings := &subscriptionPermissionSettings{
		cacheTTL:  DefaultUserCacheTTL,
		cacheSize: 10000,
	}
	for _, opt := range opts {
		opt(settings)
	}

	loader := func(ctx context.Context, key string) (*identity.User, bool, error) {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, false, err
		}
		user, err := users.FetchUserByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return user, user != nil, nil
	}

	return &SubscriptionPermission{
		users: cache.New(loader,
			cache.WithMaxAge[*identity.User](settings.cacheTTL),
			cache.WithMaxElements[*identity.User](settings.cacheSize),
		),
		oracle: oracle,
		logger: l,
	}
}

func (h *SubscriptionPermission) Family() string {
	return SubscriptionPermissionFamily
}

// Stop releases the user cache. Called by the processor on shutdown.
func (h *SubscriptionPermission) Stop() {
	h.users.Stop()
}

func (h *SubscriptionPermission) Handle(ctx context.Context, cmd command.Command, pub transport.Publisher) error {
	responseStream, ok := cmd.String("responseStream")
	if !ok {
		h.logger.Error("invalid subscription permission request: no responseStream field")
		return nil
	}

	userID, ok := cmd.Int64("userId")
	if !ok {
		h.logger.Error("invalid subscription permission request: no userId field")
		return publishJSON(ctx, pub, responseStream, map[string]any{
			"canRegister": false,
			"reason":      invalidRequestReason,
			"streamName":  invalidStreamName,
			"userId":      -1,
		}, false)
	}

	streamName, ok := cmd.String("streamName")
	if !ok {
		h.logger.Error("invalid subscription permission request: no streamName field")
		return publishJSON(ctx, pub, responseStream, map[string]any{
			"canRegister": false,
			"reason":      invalidRequestReason,
			"streamName":  invalidStreamName,
			"userId":      userID,
		}, false)
	}

	var (
		decision identity.Decision
		err      error
	)
	if userID == 0 {
		// Guests never touch the user cache.
		decision, err = h.oracle.GuestCanSubscribe(ctx, streamName)
	} else {
		var loaded cache.Loaded[*identity.User]
		loaded, err = h.users.Get(ctx, strconv.FormatInt(userID, 10))
		if err != nil {
			h.logger.Error("user lookup failed",
				zap.Int64("userId", userID),
				zap.Error(err),
			)
			return err
		}

		var user *identity.User
		if loaded.Found {
			user = loaded.Value
		}
		decision, err = h.oracle.UserCanSubscribe(ctx, user, streamName)
	}
	if err != nil {
		h.logger.Error("permission oracle failed",
			zap.Int64("userId", userID),
			zap.String("streamName", streamName),
			zap.Error(err),
		)
		return err
	}

	decision = decision.Normalized()
	return publishJSON(ctx, pub, responseStream, map[string]any{
		"canRegister": decision.Allowed,
		"reason":      decision.Reason,
		"streamName":  streamName,
		"userId":      userID,
	}, false)
}
