package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventStore is an in-memory event store used for in-process mode and tests
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	byCorr    map[string][]Event // correlationKey|applicationKey -> events
	all       []Event            // commit order, for replay
	snapshots map[string]*Snapshot
	publisher EventPublisher
}

func NewEventStore(publisher EventPublisher) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		byCorr:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		publisher: publisher,
	}
}

func correlationIndexKey(correlationKey, applicationKey string) string {
	return correlationKey + "|" + applicationKey
}

// Append stores the batch atomically and publishes each event afterwards
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType string, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	es.mu.Lock()
	base := len(es.events[aggregateID])
	committed := make([]Event, 0, len(pending))
	for i, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			es.mu.Unlock()
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
		event := Event{
			ID:             uuid.New().String(),
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			EventType:      p.EventType,
			CorrelationKey: p.CorrelationKey,
			ApplicationKey: p.ApplicationKey,
			SagaProcessKey: p.SagaProcessKey,
			Data:           jsonData,
			Timestamp:      time.Now(),
			Version:        base + i,
		}
		committed = append(committed, event)
	}
	es.events[aggregateID] = append(es.events[aggregateID], committed...)
	es.all = append(es.all, committed...)
	for _, event := range committed {
		key := correlationIndexKey(event.CorrelationKey, event.ApplicationKey)
		es.byCorr[key] = append(es.byCorr[key], event)
	}
	es.mu.Unlock()

	// Post-commit publish: a failure here leaves the events committed and is
	// recovered by replay, matching at-least-once delivery downstream.
	if es.publisher != nil {
		for _, event := range committed {
			if err := es.publisher.PublishEvent(ctx, aggregateID, event); err != nil {
				log.Printf("[EventStore] Failed to publish event %s (%s): %v", event.ID, event.EventType, err)
			}
		}
	}

	return committed, nil
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	events := make([]Event, len(es.events[aggregateID]))
	copy(events, es.events[aggregateID])
	return events, nil
}

// GetEventsFromVersion returns events with version >= fromVersion
func (es *EventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.events[aggregateID] {
		if e.Version >= fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetHistory returns prior events for a correlation within an application scope
func (es *EventStore) GetHistory(ctx context.Context, correlationKey, applicationKey string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	indexed := es.byCorr[correlationIndexKey(correlationKey, applicationKey)]
	events := make([]Event, len(indexed))
	copy(events, indexed)
	return events, nil
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (es *EventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.snapshots[aggregateID], nil
}

// SaveSnapshot persists a snapshot
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetAllEvents returns all events ordered by commit time (for replay)
func (es *EventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	all := make([]Event, len(es.all))
	copy(all, es.all)
	return all, nil
}
