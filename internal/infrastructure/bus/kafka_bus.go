package bus

import (
	"context"
	"time"
)

// KafkaBus binds a channel's publisher and subscription table into the
// MessageBus surface. The matching Dispatcher consumes the same table, so
// subscriptions registered here take effect on the consumer loop immediately.
type KafkaBus struct {
	publisher *Publisher
	table     *SubscriptionTable
}

func NewKafkaBus(publisher *Publisher, table *SubscriptionTable) *KafkaBus {
	return &KafkaBus{publisher: publisher, table: table}
}

func (b *KafkaBus) Publish(ctx context.Context, msg Message, scheduledAt time.Time) error {
	return b.publisher.Publish(ctx, msg, scheduledAt)
}

func (b *KafkaBus) Subscribe(routingKey string, handler Handler) int {
	return b.table.Add(routingKey, handler)
}

func (b *KafkaBus) Unsubscribe(routingKey string, id int) {
	b.table.Remove(routingKey, id)
}
