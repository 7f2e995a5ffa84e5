package bus

import (
	"context"
	"log"
	"time"
)

// InMemoryBus dispatches messages inside the process, for single-binary
// deployments and tests. Immediate publishes run handlers synchronously so
// the caller observes handler failures; delayed publishes fire on a timer.
type InMemoryBus struct {
	table *SubscriptionTable
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{table: NewSubscriptionTable()}
}

func (b *InMemoryBus) Publish(ctx context.Context, msg Message, scheduledAt time.Time) error {
	delay := time.Duration(0)
	if !scheduledAt.IsZero() {
		if d := time.Until(scheduledAt); d > 0 {
			delay = d
		}
	}

	if delay > 0 {
		time.AfterFunc(delay, func() {
			deliverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := b.deliver(deliverCtx, msg); err != nil {
				log.Printf("[Bus] Delayed in-memory delivery of %s failed: %v", msg.Type, err)
			}
		})
		return nil
	}

	return b.deliver(ctx, msg)
}

func (b *InMemoryBus) deliver(ctx context.Context, msg Message) error {
	return runHandlers(ctx, b.table.Handlers(msg.Type), msg)
}

func (b *InMemoryBus) Subscribe(routingKey string, handler Handler) int {
	return b.table.Add(routingKey, handler)
}

func (b *InMemoryBus) Unsubscribe(routingKey string, id int) {
	b.table.Remove(routingKey, id)
}

// Table exposes the subscription table for topology assertions in tests
func (b *InMemoryBus) Table() *SubscriptionTable {
	return b.table
}
