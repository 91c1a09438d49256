package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/internal/identity"
	"github.com/establishment/cerberus/pkg/logger"
	"github.com/establishment/cerberus/pkg/transport"
)

const (
	// UserIdentificationFamily prefixes the identification stream pair.
	UserIdentificationFamily = "meta-user-identification"

	invalidSessionKey = "INVALID_SESSION_KEY"
)

// UserIdentification answers "which user does this session key belong to".
// Identity is resolved fresh on every call: session keys are typically not
// repeated request-to-request, so caching them would buy nothing.
type UserIdentification struct {
	sessions identity.SessionResolver
	logger   logger.Logger
}

var _ Handler = (*UserIdentification)(nil)

func NewUserIdentification(sessions identity.SessionResolver, l logger.Logger) *UserIdentification {
	return &UserIdentification{
		sessions: sessions,
		logger:   l,
	}
}

func (h *UserIdentification) Family() string {
	return UserIdentificationFamily
}

func (h *UserIdentification) Handle(ctx context.Context, cmd command.Command, pub transport.Publisher) error {
	responseStream, ok := cmd.String("responseStream")
	if !ok {
		// Nowhere to answer; the caller gets nothing.
		h.logger.Error("invalid user identification request: no responseStream field")
		return nil
	}

	sessionKey, ok := cmd.String("sessionKey")
	if !ok {
		h.logger.Error("invalid user identification request: no sessionKey field")
		return publishJSON(ctx, pub, responseStream, map[string]any{
			"sessionKey": invalidSessionKey,
			"userId":     -1,
		}, false)
	}

	userID := int64(-1)
	id, found, err := h.sessions.ResolveSession(ctx, sessionKey)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		return err
	}
	if found {
		userID = id
	}

	return publishJSON(ctx, pub, responseStream, map[string]any{
		"sessionKey": sessionKey,
		"userId":     userID,
	}, false)
}
