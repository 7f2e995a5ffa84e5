// Package bus carries commands and events across process boundaries with
// connection recovery and at-least-once delivery. Two logical channels exist:
// a command channel (single consumer group, supports delayed delivery) and an
// event channel (fan-out via independent consumer groups). The channels never
// share writers, readers or connections, so command backpressure cannot block
// event delivery.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message is the wire envelope. Type is the concrete command/event type name
// and doubles as the routing key; Key selects the partition so per-aggregate
// ordering holds within one consumer group.
type Message struct {
	Type string          `json:"type"`
	Key  string          `json:"key"`
	Body json.RawMessage `json:"body"`
}

// Handler consumes a delivered message body. Typed and dynamic handlers share
// this shape; Subscribe wraps typed handlers around it.
type Handler func(ctx context.Context, body json.RawMessage) error

// MessageBus is the transport-agnostic publish/subscribe surface
type MessageBus interface {
	// Publish serializes the message and hands it to the transport. A
	// non-zero scheduledAt delays delivery by max(0, scheduledAt-now);
	// timing is best-effort but never early.
	Publish(ctx context.Context, msg Message, scheduledAt time.Time) error

	// Subscribe registers a dynamic handler for a routing key and returns a
	// subscription id. The binding is created on the first subscription for
	// that key.
	Subscribe(routingKey string, handler Handler) int

	// Unsubscribe removes a subscription; removing the last one for a
	// routing key tears the binding down.
	Unsubscribe(routingKey string, id int)
}

// NewMessage builds a message with a marshaled body
func NewMessage(msgType, key string, body any) (Message, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal message body: %w", err)
	}
	return Message{Type: msgType, Key: key, Body: data}, nil
}

// Subscribe registers a typed handler: the body is deserialized to T before
// dispatch. Typed and dynamic handlers may coexist on one routing key.
func Subscribe[T any](b MessageBus, routingKey string, handler func(ctx context.Context, msg T) error) int {
	return b.Subscribe(routingKey, func(ctx context.Context, body json.RawMessage) error {
		var msg T
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to deserialize %s: %w", routingKey, err)
		}
		return handler(ctx, msg)
	})
}
