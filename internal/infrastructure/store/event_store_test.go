package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *capturingPublisher) PublishEvent(ctx context.Context, key string, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func pendingEvent(eventType, correlationKey string) PendingEvent {
	return PendingEvent{
		EventType:      eventType,
		CorrelationKey: correlationKey,
		ApplicationKey: "app-1",
		Data:           map[string]string{"field": "value"},
	}
}

func TestEventStore_AppendAssignsSequentialVersions(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	first, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{
		pendingEvent("ChargeCreated", "corr-1"),
		pendingEvent("ChargeProcessed", "corr-2"),
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 0, first[0].Version)
	assert.Equal(t, 1, first[1].Version)

	second, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{
		pendingEvent("ChargeSettled", "corr-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second[0].Version)
}

func TestEventStore_AppendIsPerAggregate(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	_, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-1")})
	require.NoError(t, err)
	other, err := es.Append(ctx, "charge-2", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-2")})
	require.NoError(t, err)

	// Each aggregate has its own version sequence
	assert.Equal(t, 0, other[0].Version)

	events, err := es.GetEvents(ctx, "charge-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventStore_AppendEmptyBatchIsNoop(t *testing.T) {
	es := NewEventStore(nil)

	committed, err := es.Append(context.Background(), "charge-1", "Charge", nil)

	require.NoError(t, err)
	assert.Nil(t, committed)
}

func TestEventStore_GetEventsFromVersion(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	_, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{
		pendingEvent("ChargeCreated", "corr-1"),
		pendingEvent("ChargeProcessed", "corr-2"),
		pendingEvent("ChargeSettled", "corr-3"),
	})
	require.NoError(t, err)

	tail, err := es.GetEventsFromVersion(ctx, "charge-1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 1, tail[0].Version)
	assert.Equal(t, "ChargeProcessed", tail[0].EventType)
}

func TestEventStore_GetHistoryScopedByApplication(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	_, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-1")})
	require.NoError(t, err)
	_, err = es.Append(ctx, "charge-2", "Charge", []PendingEvent{{
		EventType:      "ChargeCreated",
		CorrelationKey: "corr-1",
		ApplicationKey: "app-2",
		Data:           map[string]string{},
	}})
	require.NoError(t, err)

	history, err := es.GetHistory(ctx, "corr-1", "app-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "charge-1", history[0].AggregateID)

	empty, err := es.GetHistory(ctx, "corr-unknown", "app-1")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEventStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	missing, err := es.GetSnapshot(ctx, "charge-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID:   "charge-1",
		AggregateType: "Charge",
		State:         []byte(`{"id":"charge-1"}`),
		Version:       10,
	}))

	snapshot, err := es.GetSnapshot(ctx, "charge-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 10, snapshot.Version)
}

func TestEventStore_GetAllEventsInCommitOrder(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	_, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-1")})
	require.NoError(t, err)
	_, err = es.Append(ctx, "charge-2", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-2")})
	require.NoError(t, err)
	_, err = es.Append(ctx, "charge-1", "Charge", []PendingEvent{pendingEvent("ChargeProcessed", "corr-3")})
	require.NoError(t, err)

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "charge-1", all[0].AggregateID)
	assert.Equal(t, "charge-2", all[1].AggregateID)
	assert.Equal(t, "ChargeProcessed", all[2].EventType)
}

func TestEventStore_PublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	publisher := &capturingPublisher{}
	es := NewEventStore(publisher)

	committed, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{
		pendingEvent("ChargeCreated", "corr-1"),
		pendingEvent("ChargeProcessed", "corr-2"),
	})
	require.NoError(t, err)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, committed[0].ID, publisher.events[0].ID)
	assert.Equal(t, "ChargeProcessed", publisher.events[1].EventType)
}

func TestEventStore_PublishFailureDoesNotUndoCommit(t *testing.T) {
	ctx := context.Background()
	publisher := &capturingPublisher{err: errors.New("broker down")}
	es := NewEventStore(publisher)

	committed, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-1")})
	require.NoError(t, err)
	require.Len(t, committed, 1)

	events, err := es.GetEvents(ctx, "charge-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEvent_JSONEncoding(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	committed, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{pendingEvent("ChargeCreated", "corr-1")})
	require.NoError(t, err)

	data, err := json.Marshal(committed[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "charge-1", decoded["aggregate_id"])
	assert.Equal(t, "ChargeCreated", decoded["event_type"])
	assert.Equal(t, "corr-1", decoded["correlation_key"])
	assert.Equal(t, float64(0), decoded["version"])
	// Empty saga process key stays off the wire
	assert.NotContains(t, decoded, "saga_process_key")

	var roundTrip Event
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	assert.Equal(t, committed[0].ID, roundTrip.ID)
	assert.Equal(t, committed[0].Data, roundTrip.Data)
}

func TestEventStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := es.Append(ctx, "charge-1", "Charge", []PendingEvent{
				pendingEvent("ChargeCreated", fmt.Sprintf("corr-%d", n)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events, err := es.GetEvents(ctx, "charge-1")
	require.NoError(t, err)
	require.Len(t, events, 20)
	for i, e := range events {
		assert.Equal(t, i, e.Version)
	}
}
