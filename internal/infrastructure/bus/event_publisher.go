package bus

import (
	"context"
	"time"

	"github.com/example/payment-orders/internal/infrastructure/store"
)

// EventPublisher bridges the event store's post-commit publish to the event
// channel. The event type is the routing key; the aggregate id keys the
// partition so one aggregate's events stay ordered.
type EventPublisher struct {
	eventBus MessageBus
}

func NewEventPublisher(eventBus MessageBus) *EventPublisher {
	return &EventPublisher{eventBus: eventBus}
}

func (p *EventPublisher) PublishEvent(ctx context.Context, key string, event store.Event) error {
	msg, err := NewMessage(event.EventType, event.AggregateID, event)
	if err != nil {
		return err
	}
	return p.eventBus.Publish(ctx, msg, time.Time{})
}
