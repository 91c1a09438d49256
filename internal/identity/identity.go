// Package identity holds the collaborators the command handlers consult:
// session resolution, user lookup, and the subscription permission oracles.
package identity

import "context"

// User is the minimal projection of a platform user the daemon needs.
type User struct {
	ID       int64
	Username string
	IsActive bool
}

// DefaultReason is substituted when an oracle allows or denies without
// giving a reason of its own.
const DefaultReason = "Default"

// Decision is the normalized answer of a permission oracle. Oracles that
// only know a yes/no leave Reason empty; Normalized fills the default in at
// the boundary so handlers never see the two shapes.
type Decision struct {
	Allowed bool
	Reason  string
}

func (d Decision) Normalized() Decision {
	if d.Reason == "" {
		d.Reason = DefaultReason
	}
	return d
}

// SessionResolver resolves a session key to an authenticated user id.
type SessionResolver interface {
	// ResolveSession returns the user id bound to the session key, or
	// found=false when the session does not exist or carries no
	// authenticated user.
	ResolveSession(ctx context.Context, sessionKey string) (userID int64, found bool, err error)
}

// UserFetcher is the backing store behind the user cache. A nil user with a
// nil error means the id does not exist; that answer is negative-cached.
type UserFetcher interface {
	FetchUserByID(ctx context.Context, id int64) (*User, error)
}

// PermissionOracle decides stream subscriptions. The user may be nil when
// the id resolved to a confirmed-absent user; the oracle still answers.
type PermissionOracle interface {
	UserCanSubscribe(ctx context.Context, user *User, streamName string) (Decision, error)
	GuestCanSubscribe(ctx context.Context, streamName string) (Decision, error)
}
