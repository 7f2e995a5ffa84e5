package saga

import (
	"context"
	"time"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/infrastructure/bus"
)

// Scheduler dispatches follow-up commands. Delayed dispatch guarantees the
// command runs no earlier than the requested delay; exact timing is
// best-effort.
type Scheduler interface {
	RunNow(ctx context.Context, env command.Envelope) error
	RunDelayed(ctx context.Context, delay time.Duration, env command.Envelope) error
}

// BusScheduler publishes command envelopes onto the command channel
type BusScheduler struct {
	commandBus bus.MessageBus
}

func NewBusScheduler(commandBus bus.MessageBus) *BusScheduler {
	return &BusScheduler{commandBus: commandBus}
}

func (s *BusScheduler) RunNow(ctx context.Context, env command.Envelope) error {
	msg, err := bus.NewMessage(env.Type, env.AggregateKey, env)
	if err != nil {
		return err
	}
	return s.commandBus.Publish(ctx, msg, time.Time{})
}

func (s *BusScheduler) RunDelayed(ctx context.Context, delay time.Duration, env command.Envelope) error {
	msg, err := bus.NewMessage(env.Type, env.AggregateKey, env)
	if err != nil {
		return err
	}
	return s.commandBus.Publish(ctx, msg, time.Now().Add(delay))
}
