package saga

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/infrastructure/store"
)

// scheduledCommand records one scheduler call for assertions
type scheduledCommand struct {
	Delay    time.Duration
	Envelope command.Envelope
}

// fakeScheduler captures scheduled commands instead of publishing them
type fakeScheduler struct {
	Commands []scheduledCommand
	Err      error
}

func (s *fakeScheduler) RunNow(ctx context.Context, env command.Envelope) error {
	if s.Err != nil {
		return s.Err
	}
	s.Commands = append(s.Commands, scheduledCommand{Envelope: env})
	return nil
}

func (s *fakeScheduler) RunDelayed(ctx context.Context, delay time.Duration, env command.Envelope) error {
	if s.Err != nil {
		return s.Err
	}
	s.Commands = append(s.Commands, scheduledCommand{Delay: delay, Envelope: env})
	return nil
}

func (s *fakeScheduler) last() scheduledCommand {
	return s.Commands[len(s.Commands)-1]
}

// makeEvent builds a committed event for handler tests
func makeEvent(aggregateID, aggregateType, eventType string, version int, data any) store.Event {
	payload, _ := json.Marshal(data)
	return store.Event{
		ID:             uuid.NewString(),
		AggregateID:    aggregateID,
		AggregateType:  aggregateType,
		EventType:      eventType,
		CorrelationKey: uuid.NewString(),
		ApplicationKey: "app-1",
		Data:           payload,
		Timestamp:      time.Now(),
		Version:        version,
	}
}
