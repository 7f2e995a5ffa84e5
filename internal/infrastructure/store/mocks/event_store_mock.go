package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	snapshots map[string]*store.Snapshot

	// For tracking calls in tests
	AppendCalls []AppendCall
	AppendErr   error
}

// AppendCall records one pending event passed to Append
type AppendCall struct {
	AggregateID    string
	AggregateType  string
	EventType      string
	CorrelationKey string
	ApplicationKey string
	SagaProcessKey string
	Data           any
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		snapshots:   make(map[string]*store.Snapshot),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append stores the batch in memory
func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType string, pending []store.PendingEvent) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range pending {
		m.AppendCalls = append(m.AppendCalls, AppendCall{
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			EventType:      p.EventType,
			CorrelationKey: p.CorrelationKey,
			ApplicationKey: p.ApplicationKey,
			SagaProcessKey: p.SagaProcessKey,
			Data:           p.Data,
		})
	}

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	base := len(m.events[aggregateID])
	committed := make([]store.Event, 0, len(pending))
	for i, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
		event := store.Event{
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
	m.events[aggregateID] = append(m.events[aggregateID], committed...)

	return committed, nil
}

// AddEvent seeds an event without recording an Append call
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, correlationKey, applicationKey string, data any) store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	jsonData, _ := json.Marshal(data)
	event := store.Event{
		ID:             uuid.New().String(),
		AggregateID:    aggregateID,
		AggregateType:  aggregateType,
		EventType:      eventType,
		CorrelationKey: correlationKey,
		ApplicationKey: applicationKey,
		Data:           jsonData,
		Timestamp:      time.Now(),
		Version:        len(m.events[aggregateID]),
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	return event
}

// GetEvents returns all events for an aggregate
func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events[aggregateID], nil
}

// GetEventsFromVersion returns events with version >= fromVersion
func (m *MockEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version >= fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetHistory returns prior events for a correlation within an application scope
func (m *MockEventStore) GetHistory(ctx context.Context, correlationKey, applicationKey string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []store.Event
	for _, stream := range m.events {
		for _, e := range stream {
			if e.CorrelationKey == correlationKey && e.ApplicationKey == applicationKey {
				events = append(events, e)
			}
		}
	}
	return events, nil
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (m *MockEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[aggregateID], nil
}

// SaveSnapshot persists a snapshot
func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.AggregateID] = snapshot
	return nil
}
