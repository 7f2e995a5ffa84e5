package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresEventStore stores events in PostgreSQL
type PostgresEventStore struct {
	db        *sql.DB
	publisher EventPublisher
}

func NewPostgresEventStore(db *sql.DB, publisher EventPublisher) *PostgresEventStore {
	return &PostgresEventStore{
		db:        db,
		publisher: publisher,
	}
}

// Append stores the batch in a single transaction and publishes post-commit.
// A unique index on (aggregate_id, version) rejects concurrent writers.
func (es *PostgresEventStore) Append(ctx context.Context, aggregateID, aggregateType string, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentCount int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&currentCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}

	committed := make([]Event, 0, len(pending))
	for i, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
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
			Version:        currentCount + i,
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, correlation_key, application_key, saga_process_key, data, version, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			event.CorrelationKey,
			event.ApplicationKey,
			event.SagaProcessKey,
			event.Data,
			event.Version,
			event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}

		committed = append(committed, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}

	if es.publisher != nil {
		for _, event := range committed {
			if err := es.publisher.PublishEvent(ctx, aggregateID, event); err != nil {
				log.Printf("[EventStore] Failed to publish event %s (%s): %v", event.ID, event.EventType, err)
			}
		}
	}

	return committed, nil
}

const eventColumns = `id, aggregate_id, aggregate_type, event_type, correlation_key, application_key, saga_process_key, data, version, created_at`

// GetEvents returns all events for an aggregate from PostgreSQL
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 ORDER BY version ASC`,
		aggregateID,
	)
}

// GetEventsFromVersion returns events with version >= fromVersion
func (es *PostgresEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 AND version >= $2 ORDER BY version ASC`,
		aggregateID, fromVersion,
	)
}

// GetHistory returns prior events for a correlation within an application scope
func (es *PostgresEventStore) GetHistory(ctx context.Context, correlationKey, applicationKey string) ([]Event, error) {
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE correlation_key = $1 AND application_key = $2 ORDER BY created_at ASC`,
		correlationKey, applicationKey,
	)
}

// GetAllEvents returns all events ordered by commit time (for replay)
func (es *PostgresEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at ASC, version ASC`,
	)
}

func (es *PostgresEventStore) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.CorrelationKey, &e.ApplicationKey, &e.SagaProcessKey, &e.Data, &e.Version, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (es *PostgresEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var s Snapshot
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &s.State, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return &s, nil
}

// SaveSnapshot persists a snapshot, keeping only the latest per aggregate
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET version = EXCLUDED.version, state = EXCLUDED.state, created_at = EXCLUDED.created_at`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.State,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
