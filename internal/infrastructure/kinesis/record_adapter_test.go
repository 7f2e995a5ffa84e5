package kinesis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chargeCreatedImage() map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":               events.NewStringAttribute("evt-1"),
		"aggregate_id":     events.NewStringAttribute("charge-1"),
		"aggregate_type":   events.NewStringAttribute("Charge"),
		"event_type":       events.NewStringAttribute("ChargeCreated"),
		"correlation_key":  events.NewStringAttribute("corr-1"),
		"application_key":  events.NewStringAttribute("app-1"),
		"saga_process_key": events.NewStringAttribute("charge-1"),
		"data":             events.NewStringAttribute(`{"charge_id":"charge-1","amount_in_cents":2500}`),
		"created_at":       events.NewStringAttribute("2025-03-01T12:00:00.000000005Z"),
		"version":          events.NewNumberAttribute("3"),
	}
}

func insertRecord(image map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventName: "INSERT",
		Change:    events.DynamoDBStreamRecord{NewImage: image},
	}
}

func TestConvertFromDynamoDBStreamRecord(t *testing.T) {
	event, err := ConvertFromDynamoDBStreamRecord(insertRecord(chargeCreatedImage()))

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, "charge-1", event.AggregateID)
	assert.Equal(t, "Charge", event.AggregateType)
	assert.Equal(t, "ChargeCreated", event.EventType)
	assert.Equal(t, "corr-1", event.CorrelationKey)
	assert.Equal(t, "app-1", event.ApplicationKey)
	assert.Equal(t, "charge-1", event.SagaProcessKey)
	assert.Equal(t, 3, event.Version)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 5, time.UTC), event.Timestamp.UTC())

	var data map[string]any
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "charge-1", data["charge_id"])
}

func TestConvertFromDynamoDBStreamRecord_SkipsNonInsert(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		record := insertRecord(chargeCreatedImage())
		record.EventName = name

		event, err := ConvertFromDynamoDBStreamRecord(record)

		require.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestConvertFromDynamoDBStreamRecord_MissingRequiredField(t *testing.T) {
	for _, field := range []string{"id", "aggregate_id", "event_type"} {
		image := chargeCreatedImage()
		delete(image, field)

		_, err := ConvertFromDynamoDBStreamRecord(insertRecord(image))

		assert.ErrorContains(t, err, "missing required fields", "field %s", field)
	}
}

func TestConvertFromDynamoDBStreamRecord_BadTimestamp(t *testing.T) {
	image := chargeCreatedImage()
	image["created_at"] = events.NewStringAttribute("last tuesday")

	_, err := ConvertFromDynamoDBStreamRecord(insertRecord(image))

	assert.ErrorContains(t, err, "created_at")
}

func TestConvertFromDynamoDBStreamRecord_NilImage(t *testing.T) {
	_, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{EventName: "INSERT"})

	assert.Error(t, err)
}

func kinesisRecord(t *testing.T, record events.DynamoDBEventRecord) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shardId-000:1",
		Kinesis: events.KinesisRecord{Data: data},
	}
}

func TestConvertFromKinesisRecord(t *testing.T) {
	event, err := ConvertFromKinesisRecord(kinesisRecord(t, insertRecord(chargeCreatedImage())))

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "ChargeCreated", event.EventType)
	assert.Equal(t, "charge-1", event.AggregateID)
}

func TestConvertFromKinesisRecord_GarbagePayload(t *testing.T) {
	record := events.KinesisEventRecord{
		Kinesis: events.KinesisRecord{Data: []byte("not a stream record")},
	}

	_, err := ConvertFromKinesisRecord(record)

	assert.Error(t, err)
}

func TestBatchConvertFromKinesisEvent(t *testing.T) {
	modify := insertRecord(chargeCreatedImage())
	modify.EventName = "MODIFY"

	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, insertRecord(chargeCreatedImage())),
		kinesisRecord(t, modify),
		{EventID: "bad-1", Kinesis: events.KinesisRecord{Data: []byte("garbage")}},
	}}

	converted, errs := BatchConvertFromKinesisEvent(batch)

	require.Len(t, converted, 1)
	assert.Equal(t, "ChargeCreated", converted[0].EventType)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "bad-1")
}
