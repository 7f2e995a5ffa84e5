package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/payment-orders/internal/infrastructure/store"
)

// ErrAggregateNotFound is returned by Load when no events exist for the key
var ErrAggregateNotFound = errors.New("aggregate not found")

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	SetVersion(int)
	ApplyEvent(store.Event) error
	Record(store.PendingEvent)
	PendingEvents() []store.PendingEvent
	ClearPendingEvents()
}

// Keys carries the routing keys an intent method stamps on its events
type Keys struct {
	CorrelationKey string
	ApplicationKey string
	SagaProcessKey string
}

// Root is embedded by aggregates to track version and uncommitted events
type Root struct {
	Version int `json:"version"` // Number of applied events

	pending []store.PendingEvent
}

func (r *Root) GetVersion() int  { return r.Version }
func (r *Root) SetVersion(v int) { r.Version = v }

// Record adds an uncommitted event to the pending list
func (r *Root) Record(e store.PendingEvent) {
	r.pending = append(r.pending, e)
}

// PendingEvents returns the uncommitted events in recording order
func (r *Root) PendingEvents() []store.PendingEvent {
	return r.pending
}

// ClearPendingEvents drops the pending list after a successful save
func (r *Root) ClearPendingEvents() {
	r.pending = nil
}

// Raise applies an event to the aggregate's in-memory state and records it as
// pending. The target version is the aggregate's current version, so replaying
// the committed stream reproduces the same state.
func Raise(agg Aggregate, eventType string, keys Keys, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := store.Event{
		EventType:      eventType,
		CorrelationKey: keys.CorrelationKey,
		ApplicationKey: keys.ApplicationKey,
		SagaProcessKey: keys.SagaProcessKey,
		Data:           jsonData,
		Timestamp:      time.Now(),
		Version:        agg.GetVersion(),
	}
	if err := agg.ApplyEvent(event); err != nil {
		return fmt.Errorf("failed to apply event: %w", err)
	}

	agg.Record(store.PendingEvent{
		EventType:      eventType,
		CorrelationKey: keys.CorrelationKey,
		ApplicationKey: keys.ApplicationKey,
		SagaProcessKey: keys.SagaProcessKey,
		Data:           data,
	})
	return nil
}

// Load reconstructs an aggregate by replaying events, using a snapshot if
// available. Returns ErrAggregateNotFound when neither snapshot nor events
// exist for the key.
func Load[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (T, error) {
	var zero T
	agg := newAggregate()

	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var events []store.Event
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, agg); err != nil {
			return zero, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		events, err = eventStore.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events, err = eventStore.GetEvents(ctx, id)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to get events: %w", err)
	}

	if snapshot == nil && len(events) == 0 {
		return zero, ErrAggregateNotFound
	}

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			return zero, fmt.Errorf("failed to apply event: %w", err)
		}
	}

	return agg, nil
}

// Save appends the aggregate's pending events atomically, all or none. The
// store assigns sequential versions and publishes post-commit. On success the
// pending list is cleared and a snapshot is taken when the threshold is hit.
func Save(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType string,
) ([]store.Event, error) {
	pending := agg.PendingEvents()
	if len(pending) == 0 {
		return nil, nil
	}

	committed, err := eventStore.Append(ctx, agg.GetID(), aggregateType, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to append events: %w", err)
	}

	agg.ClearPendingEvents()
	if len(committed) > 0 {
		agg.SetVersion(committed[len(committed)-1].Version + 1)
	}

	if err := MaybeCreateSnapshot(ctx, eventStore, agg, aggregateType); err != nil {
		log.Printf("[AggregateStore] Failed to create snapshot for %s %s: %v", aggregateType, agg.GetID(), err)
	}

	return committed, nil
}

// MaybeCreateSnapshot creates a snapshot if the threshold is exceeded
func MaybeCreateSnapshot(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType string,
) error {
	version := agg.GetVersion()
	if version > 0 && version%store.SnapshotThreshold == 0 {
		state, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("failed to marshal aggregate state: %w", err)
		}

		snapshot := &store.Snapshot{
			AggregateID:   agg.GetID(),
			AggregateType: aggregateType,
			Version:       version,
			State:         state,
			CreatedAt:     time.Now(),
		}

		if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	return nil
}
