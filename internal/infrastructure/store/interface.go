package store

import "context"

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	// Append commits a batch of pending events atomically, assigning each the
	// next sequential version, and publishes them post-commit.
	Append(ctx context.Context, aggregateID, aggregateType string, pending []PendingEvent) ([]Event, error)

	// GetEvents returns all events for an aggregate in ascending version order
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)

	// GetEventsFromVersion returns events with version >= fromVersion
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)

	// GetHistory returns prior events for a (correlation key, application key)
	// pair, used for duplicate-command detection.
	GetHistory(ctx context.Context, correlationKey, applicationKey string) ([]Event, error)

	// GetSnapshot returns the latest snapshot for an aggregate, or nil
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)

	// SaveSnapshot persists a snapshot
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// EventPublisher publishes committed events onto the event channel.
// Publication happens after the append commits; it is not transactional with it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event Event) error
}
