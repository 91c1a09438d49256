package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisSessionResolver reads sessions written by the web tier: a JSON
// document under "session:<key>" carrying the authenticated user id.
type RedisSessionResolver struct {
	client *redis.Client
}

var _ SessionResolver = (*RedisSessionResolver)(nil)

func NewRedisSessionResolver(client *redis.Client) *RedisSessionResolver {
	return &RedisSessionResolver{client: client}
}

type sessionDocument struct {
	UserID int64 `json:"userId"`
}

func (r *RedisSessionResolver) ResolveSession(ctx context.Context, sessionKey string) (int64, bool, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+sessionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve session: %w", err)
	}

	var doc sessionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		// A corrupt session is treated the same as no session.
		return 0, false, nil
	}
	if doc.UserID <= 0 {
		return 0, false, nil
	}
	return doc.UserID, true, nil
}
