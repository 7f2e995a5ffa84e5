package store

import (
	"encoding/json"
	"time"
)

// Event represents a committed domain event. Version is the zero-based target
// version within the aggregate's stream: the first event of an aggregate has
// Version 0 and versions are gapless and monotonic per aggregate.
type Event struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	EventType      string          `json:"event_type"`
	CorrelationKey string          `json:"correlation_key"`
	ApplicationKey string          `json:"application_key"`
	SagaProcessKey string          `json:"saga_process_key,omitempty"`
	Data           json.RawMessage `json:"data"`
	Timestamp      time.Time       `json:"timestamp"`
	Version        int             `json:"version"`
}

// PendingEvent is an uncommitted event recorded by an aggregate intent method.
// The store assigns ID, Version and Timestamp when the batch is appended.
type PendingEvent struct {
	EventType      string
	CorrelationKey string
	ApplicationKey string
	SagaProcessKey string
	Data           any
}
