package identity

import (
	"context"
	"strings"
)

// StreamPolicy is the default permission oracle: guests may subscribe to
// streams under the configured public prefixes, known active users may
// subscribe to anything.
type StreamPolicy struct {
	publicPrefixes []string
}

var _ PermissionOracle = (*StreamPolicy)(nil)

func NewStreamPolicy(publicPrefixes []string) *StreamPolicy {
	return &StreamPolicy{publicPrefixes: publicPrefixes}
}

func (p *StreamPolicy) UserCanSubscribe(ctx context.Context, user *User, streamName string) (Decision, error) {
	if user == nil {
		return Decision{Allowed: false, Reason: "Unknown user"}, nil
	}
	if !user.IsActive {
		return Decision{Allowed: false, Reason: "User is suspended"}, nil
	}
	return Decision{Allowed: true}, nil
}

func (p *StreamPolicy) GuestCanSubscribe(ctx context.Context, streamName string) (Decision, error) {
	for _, prefix := range p.publicPrefixes {
		if strings.HasPrefix(streamName, prefix) {
			return Decision{Allowed: true}, nil
		}
	}
	return Decision{Allowed: false, Reason: "Guests cannot subscribe to this stream"}, nil
}
