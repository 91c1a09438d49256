package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/pkg/logger"
)

func decodeResponse(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload, &doc))
	return doc
}

func TestUserIdentification(t *testing.T) {
	ctx := context.Background()

	t.Run("missing_response_stream_publishes_nothing", func(t *testing.T) {
		log, logs := logger.NewObserverLogger("error")
		h := NewUserIdentification(&fakeSessions{}, log)
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"sessionKey": "abc"}, pub)
		require.NoError(t, err)
		require.Empty(t, pub.published())
		require.Equal(t, 1, logs.Len())
	})

	t.Run("missing_session_key", func(t *testing.T) {
		h := NewUserIdentification(&fakeSessions{}, logger.NewNoopLogger())
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"responseStream": "r"}, pub)
		require.NoError(t, err)

		msgs := pub.published()
		require.Len(t, msgs, 1)
		require.Equal(t, "r", msgs[0].stream)
		require.False(t, msgs[0].persistent)
		require.Equal(t, map[string]any{
			"sessionKey": "INVALID_SESSION_KEY",
			"userId":     float64(-1),
		}, decodeResponse(t, msgs[0].payload))
	})

	t.Run("valid_session", func(t *testing.T) {
		h := NewUserIdentification(&fakeSessions{sessions: map[string]int64{"abc": 12}}, logger.NewNoopLogger())
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"sessionKey": "abc", "responseStream": "r"}, pub)
		require.NoError(t, err)

		msgs := pub.published()
		require.Len(t, msgs, 1)
		require.Equal(t, map[string]any{
			"sessionKey": "abc",
			"userId":     float64(12),
		}, decodeResponse(t, msgs[0].payload))
	})

	t.Run("unknown_session_answers_minus_one", func(t *testing.T) {
		h := NewUserIdentification(&fakeSessions{}, logger.NewNoopLogger())
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"sessionKey": "abc", "responseStream": "r"}, pub)
		require.NoError(t, err)

		msgs := pub.published()
		require.Len(t, msgs, 1)
		require.Equal(t, "r", msgs[0].stream)
		require.Equal(t, map[string]any{
			"sessionKey": "abc",
			"userId":     float64(-1),
		}, decodeResponse(t, msgs[0].payload))
	})

	t.Run("resolver_error_publishes_nothing", func(t *testing.T) {
		h := NewUserIdentification(&fakeSessions{err: errors.New("session store down")}, logger.NewNoopLogger())
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"sessionKey": "abc", "responseStream": "r"}, pub)
		require.Error(t, err)
		require.Empty(t, pub.published())
	})
}
