package pubsub

import (
	"context"
	"log/slog"

	"github.com/nfrund/herald/internal/mercure"
)

// TopicPrefix prefixes the bus topic of forwarded hub events.
const TopicPrefix = "mercure."

// TopicFor returns the bus topic hub events of eventType are forwarded to.
func TopicFor(eventType string) string {
	return TopicPrefix + eventType
}

// Forward republishes hub events of the given types (default "message") on
// the bus. The returned function detaches the forwarding listeners.
func Forward(ctx context.Context, client *mercure.Client, pub Publisher, eventTypes ...string) (stop func()) {
	if len(eventTypes) == 0 {
		eventTypes = []string{mercure.DefaultEventType}
	}

	listeners := make(map[string]*mercure.Listener, len(eventTypes))
	for _, eventType := range eventTypes {
		if _, dup := listeners[eventType]; dup {
			continue
		}
		l := mercure.NewListener(func(e mercure.Event) {
			msg := Message{
				Topic:   TopicFor(e.Type),
				Payload: []byte(e.Data),
				Metadata: map[string]string{
					metaKeyLastEventID: e.ID,
					metaKeyEventType:   e.Type,
				},
			}
			if err := pub.Publish(ctx, msg); err != nil {
				slog.Error("Failed to forward hub event", "topic", msg.Topic, "last_event_id", e.ID, "error", err)
			}
		})
		listeners[eventType] = l
		client.On(eventType, l)
	}

	return func() {
		for eventType, l := range listeners {
			client.Off(eventType, l)
		}
	}
}

// LastEventID returns the hub event id carried by a forwarded message.
func LastEventID(msg Message) string {
	return msg.Metadata[metaKeyLastEventID]
}

// EventType returns the hub event type carried by a forwarded message.
func EventType(msg Message) string {
	return msg.Metadata[metaKeyEventType]
}
