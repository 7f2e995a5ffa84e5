package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoEventStore stores events in DynamoDB.
// Committed events are streamed to Kinesis via the DynamoDB Kinesis integration,
// so no publisher is attached here; delivery happens through the stream.
type DynamoEventStore struct {
	client            *dynamodb.Client
	tableName         string
	snapshotTableName string
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID    string `dynamodbav:"aggregate_id"`
	Version        int    `dynamodbav:"version"`
	ID             string `dynamodbav:"id"`
	AggregateType  string `dynamodbav:"aggregate_type"`
	EventType      string `dynamodbav:"event_type"`
	CorrelationKey string `dynamodbav:"correlation_key"`
	ApplicationKey string `dynamodbav:"application_key"`
	SagaProcessKey string `dynamodbav:"saga_process_key"`
	Data           string `dynamodbav:"data"`
	CreatedAt      string `dynamodbav:"created_at"`
	GSI1PK         string `dynamodbav:"gsi1pk"` // correlation_key#application_key for GetHistory
}

func NewDynamoEventStore(client *dynamodb.Client, tableName, snapshotTableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
	}
}

func historyPartitionKey(correlationKey, applicationKey string) string {
	return correlationKey + "#" + applicationKey
}

// Append writes the batch in a single TransactWriteItems call. Conditional
// writes on (aggregate_id, version) reject concurrent writers, so the batch
// commits all-or-none.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType string, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	base, err := es.getNextVersion(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get next version: %w", err)
	}

	timestamp := time.Now()
	committed := make([]Event, 0, len(pending))
	writes := make([]types.TransactWriteItem, 0, len(pending))

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
			Timestamp:      timestamp,
			Version:        base + i,
		}

		item := dynamoEvent{
			AggregateID:    event.AggregateID,
			Version:        event.Version,
			ID:             event.ID,
			AggregateType:  event.AggregateType,
			EventType:      event.EventType,
			CorrelationKey: event.CorrelationKey,
			ApplicationKey: event.ApplicationKey,
			SagaProcessKey: event.SagaProcessKey,
			Data:           string(jsonData),
			CreatedAt:      timestamp.Format(time.RFC3339Nano),
			GSI1PK:         historyPartitionKey(event.CorrelationKey, event.ApplicationKey),
		}

		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
		committed = append(committed, event)
	}

	_, err = es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append events: %w", err)
	}

	return committed, nil
}

// getNextVersion queries for the current max version and returns the next one
func (es *DynamoEventStore) getNextVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false), // Descending order
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}

	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}

	return item.Version + 1, nil
}

// GetEvents returns all events for an aggregate from DynamoDB
func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return es.unmarshalEvents(result.Items), nil
}

// GetEventsFromVersion returns events with version >= fromVersion
func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version >= :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", fromVersion)},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return es.unmarshalEvents(result.Items), nil
}

// GetHistory returns prior events for a correlation within an application scope,
// served by GSI1 keyed on correlation_key#application_key.
func (es *DynamoEventStore) GetHistory(ctx context.Context, correlationKey, applicationKey string) ([]Event, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: historyPartitionKey(correlationKey, applicationKey)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	return es.unmarshalEvents(result.Items), nil
}

// unmarshalEvents converts DynamoDB items to Event slice
func (es *DynamoEventStore) unmarshalEvents(items []map[string]types.AttributeValue) []Event {
	events := make([]Event, 0, len(items))

	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			continue
		}

		timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)

		events = append(events, Event{
			ID:             de.ID,
			AggregateID:    de.AggregateID,
			AggregateType:  de.AggregateType,
			EventType:      de.EventType,
			CorrelationKey: de.CorrelationKey,
			ApplicationKey: de.ApplicationKey,
			SagaProcessKey: de.SagaProcessKey,
			Data:           json.RawMessage(de.Data),
			Timestamp:      timestamp,
			Version:        de.Version,
		})
	}

	return events
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots.
// Stored in a separate snapshots table with aggregate_id as partition key.
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// SaveSnapshot stores a snapshot in the dedicated snapshots table
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	item := dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Overwrite existing snapshot (no condition)
	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves the latest snapshot for an aggregate from the snapshots table
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if result.Item == nil {
		return nil, nil // No snapshot exists
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
