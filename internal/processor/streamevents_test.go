package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/internal/router"
	"github.com/establishment/cerberus/pkg/logger"
)

func presenceHandler(t *testing.T) *StreamPresenceEvent {
	t.Helper()
	r, err := router.FromConfigs(router.DefaultMatcherConfigs())
	require.NoError(t, err)
	return NewStreamPresenceEvent(r, logger.NewNoopLogger())
}

func TestStreamPresenceEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("joined_on_tracked_stream", func(t *testing.T) {
		h := presenceHandler(t)
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{
			"command": "streamEvent",
			"event":   "joined",
			"stream":  "chat-group-42",
			"userId":  float64(7),
		}, pub)
		require.NoError(t, err)

		msgs := pub.published()
		require.Len(t, msgs, 1)
		require.Equal(t, "chat-group-42", msgs[0].stream)
		require.False(t, msgs[0].persistent)
		require.Equal(t, map[string]any{
			"objectType": "messagethread",
			"type":       "onlineDeltaJoined",
			"objectId":   float64(42),
			"data":       map[string]any{"userId": float64(7)},
		}, decodeResponse(t, msgs[0].payload))
	})

	t.Run("left_on_tracked_stream", func(t *testing.T) {
		h := presenceHandler(t)
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{
			"command": "streamEvent",
			"event":   "left",
			"stream":  "chat-group-9",
			"userId":  float64(3),
		}, pub)
		require.NoError(t, err)

		msgs := pub.published()
		require.Len(t, msgs, 1)
		require.Equal(t, "onlineDeltaLeft", decodeResponse(t, msgs[0].payload)["type"])
	})

	t.Run("untracked_stream_is_a_no_op", func(t *testing.T) {
		h := presenceHandler(t)
		pub := &capturePublisher{}

		for i := 0; i < 3; i++ {
			err := h.Handle(ctx, command.Command{
				"command": "streamEvent",
				"event":   "joined",
				"stream":  "chat-private-17-23",
				"userId":  float64(7),
			}, pub)
			require.NoError(t, err)
		}
		require.Empty(t, pub.published())
	})

	t.Run("unknown_command_is_a_no_op", func(t *testing.T) {
		h := presenceHandler(t)
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"command": "somethingElse"}, pub)
		require.NoError(t, err)
		require.Empty(t, pub.published())
	})

	t.Run("unknown_event_is_a_no_op", func(t *testing.T) {
		h := presenceHandler(t)
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{
			"command": "streamEvent",
			"event":   "typing",
			"stream":  "chat-group-42",
			"userId":  float64(7),
		}, pub)
		require.NoError(t, err)
		require.Empty(t, pub.published())
	})

	t.Run("missing_fields_are_handler_errors", func(t *testing.T) {
		h := presenceHandler(t)
		pub := &capturePublisher{}

		err := h.Handle(ctx, command.Command{"command": "streamEvent", "event": "joined", "userId": float64(7)}, pub)
		require.Error(t, err)

		err = h.Handle(ctx, command.Command{"command": "streamEvent", "event": "joined", "stream": "chat-group-42"}, pub)
		require.Error(t, err)

		require.Empty(t, pub.published())
	})
}
