package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

const subjectPrefix = "rooms"

// ConversationRoom derives the room for per-conversation subscribers.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// OwnerRoom derives the room for an operator's conversation-list view.
func OwnerRoom(operatorID string) string {
	return "owner:" + operatorID
}

// Envelope wraps an event for transport.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Publisher pushes events to room subscribers. The connection registry
// (who is in which room) is the transport's concern, not the core's.
type Publisher interface {
	Publish(room, event string, payload any) error
}

// Fanout publishes room events over NATS core pub/sub. Delivery is
// best-effort at-least-once while connected; subscribers de-duplicate by
// message id.
type Fanout struct {
	client *Client
}

// NewFanout creates a fanout bound to a NATS client.
func NewFanout(client *Client) *Fanout {
	return &Fanout{client: client}
}

// subject maps a room name onto the NATS subject space. Room names use
// ':' which is not a valid subject token separator, so it is rewritten.
func subject(room string) string {
	out := make([]byte, 0, len(room)+len(subjectPrefix)+1)
	out = append(out, subjectPrefix...)
	out = append(out, '.')
	for i := 0; i < len(room); i++ {
		if room[i] == ':' {
			out = append(out, '.')
			continue
		}
		out = append(out, room[i])
	}
	return string(out)
}

// Publish sends one event to all subscribers of a room.
func (f *Fanout) Publish(room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	env, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := f.client.Conn().Publish(subject(room), env); err != nil {
		return fmt.Errorf("failed to publish to room %s: %w", room, err)
	}

	metrics.FanoutEventsTotal.WithLabelValues(event).Inc()
	return nil
}

// Subscribe delivers a room's envelopes to handler until the returned
// subscription is unsubscribed. Used by the SSE bridge.
func (f *Fanout) Subscribe(room string, handler func(Envelope)) (*nats.Subscription, error) {
	return f.client.Conn().Subscribe(subject(room), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return
		}
		handler(env)
	})
}
