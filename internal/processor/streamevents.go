package processor

import (
	"context"
	"fmt"

	"github.com/establishment/cerberus/internal/command"
	"github.com/establishment/cerberus/internal/router"
	"github.com/establishment/cerberus/pkg/logger"
	"github.com/establishment/cerberus/pkg/transport"
)

// StreamPresenceEventFamily prefixes the presence event inbound stream.
// The family is fire-and-forget: deltas are broadcast back onto whatever
// stream produced the event, never onto a fixed answer stream.
const StreamPresenceEventFamily = "meta-stream-events"

// StreamPresenceEvent relays join/left notifications as online-delta events
// on presence-tracked streams.
type StreamPresenceEvent struct {
	router *router.Router
	logger logger.Logger
}

var _ Handler = (*StreamPresenceEvent)(nil)

func NewStreamPresenceEvent(r *router.Router, l logger.Logger) *StreamPresenceEvent {
	return &StreamPresenceEvent{
		router: r,
		logger: l,
	}
}

func (h *StreamPresenceEvent) Family() string {
	return StreamPresenceEventFamily
}

func (h *StreamPresenceEvent) Handle(ctx context.Context, cmd command.Command, pub transport.Publisher) error {
	if name, _ := cmd.String("command"); name != "streamEvent" {
		return nil
	}

	event, _ := cmd.String("event")
	var eventType string
	switch event {
	case "joined":
		eventType = "onlineDeltaJoined"
	case "left":
		eventType = "onlineDeltaLeft"
	default:
		return nil
	}

	stream, ok := cmd.String("stream")
	if !ok {
		return fmt.Errorf("stream event without stream field")
	}
	userID, ok := cmd.Int64("userId")
	if !ok {
		return fmt.Errorf("stream event without userId field")
	}

	match := h.router.Route(stream)
	if !match.TracksPresence {
		return nil
	}

	// Broadcast back onto the stream that produced the event, without
	// durability: late subscribers re-query presence anyway.
	return publishJSON(ctx, pub, stream, map[string]any{
		"objectType": "messagethread",
		"type":       eventType,
		"objectId":   match.ThreadID,
		"data":       map[string]any{"userId": userID},
	}, false)
}
