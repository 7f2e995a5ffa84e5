package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves a fixed batch of messages, then blocks until cancellation
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErr != nil {
		err := r.fetchErr
		r.fetchErr = nil
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func newTestDispatcher(reader *fakeReader, table *SubscriptionTable) *Dispatcher {
	return &Dispatcher{
		name:       "Test",
		reader:     reader,
		table:      table,
		retryDelay: time.Millisecond,
	}
}

func kafkaMessage(t *testing.T, msgType, key string, payload any) kafka.Message {
	t.Helper()
	msg, err := NewMessage(msgType, key, payload)
	require.NoError(t, err)
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(key), Value: value, Offset: int64(len(value))}
}

func runDispatcher(t *testing.T, d *Dispatcher, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(finished)
	}()

	require.Eventually(t, done, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on cancellation")
	}
}

func TestDispatcher_DeliversAndCommits(t *testing.T) {
	table := NewSubscriptionTable()
	var mu sync.Mutex
	var received []testPayload
	table.Add("ChargeCreated", func(ctx context.Context, body json.RawMessage) error {
		var p testPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		return nil
	})

	reader := &fakeReader{queue: []kafka.Message{
		kafkaMessage(t, "ChargeCreated", "charge-1", testPayload{Name: "first"}),
		kafkaMessage(t, "ChargeCreated", "charge-2", testPayload{Name: "second"}),
	}}

	runDispatcher(t, newTestDispatcher(reader, table), func() bool {
		return reader.committedCount() == 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "first", received[0].Name)
	assert.Equal(t, "second", received[1].Name)
}

func TestDispatcher_RedeliversUntilHandlerSucceeds(t *testing.T) {
	table := NewSubscriptionTable()
	var mu sync.Mutex
	calls := 0
	table.Add("ChargeCreated", func(ctx context.Context, body json.RawMessage) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("projection store unavailable")
		}
		return nil
	})

	reader := &fakeReader{queue: []kafka.Message{
		kafkaMessage(t, "ChargeCreated", "charge-1", testPayload{}),
	}}

	runDispatcher(t, newTestDispatcher(reader, table), func() bool {
		return reader.committedCount() == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestDispatcher_HandlerFailureBlocksCommit(t *testing.T) {
	table := NewSubscriptionTable()
	table.Add("ChargeCreated", func(ctx context.Context, body json.RawMessage) error {
		return errors.New("always failing")
	})

	reader := &fakeReader{queue: []kafka.Message{
		kafkaMessage(t, "ChargeCreated", "charge-1", testPayload{}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	d := newTestDispatcher(reader, table)
	finished := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(finished)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-finished

	assert.Equal(t, 0, reader.committedCount())
}

func TestDispatcher_MalformedMessageIsDroppedAndCommitted(t *testing.T) {
	table := NewSubscriptionTable()
	handled := false
	table.Add("ChargeCreated", func(ctx context.Context, body json.RawMessage) error {
		handled = true
		return nil
	})

	reader := &fakeReader{queue: []kafka.Message{
		{Key: []byte("charge-1"), Value: []byte("{not json")},
	}}

	runDispatcher(t, newTestDispatcher(reader, table), func() bool {
		return reader.committedCount() == 1
	})

	assert.False(t, handled)
}

func TestDispatcher_UnroutedMessageIsCommitted(t *testing.T) {
	table := NewSubscriptionTable()

	reader := &fakeReader{queue: []kafka.Message{
		kafkaMessage(t, "NobodyListens", "key-1", testPayload{}),
	}}

	runDispatcher(t, newTestDispatcher(reader, table), func() bool {
		return reader.committedCount() == 1
	})
}

func scheduledKafkaMessage(t *testing.T, msgType, key string, payload any, due time.Time) kafka.Message {
	t.Helper()
	m := kafkaMessage(t, msgType, key, payload)
	m.Headers = append(m.Headers, kafka.Header{
		Key:   headerScheduledAt,
		Value: []byte(due.UTC().Format(time.RFC3339Nano)),
	})
	return m
}

func TestDispatcher_HoldsScheduledMessageUntilDue(t *testing.T) {
	table := NewSubscriptionTable()
	delivered := make(chan time.Time, 1)
	table.Add("VerifyChargeSettlement", func(ctx context.Context, body json.RawMessage) error {
		delivered <- time.Now()
		return nil
	})

	due := time.Now().Add(50 * time.Millisecond)
	reader := &fakeReader{queue: []kafka.Message{
		scheduledKafkaMessage(t, "VerifyChargeSettlement", "charge-1", testPayload{}, due),
	}}

	runDispatcher(t, newTestDispatcher(reader, table), func() bool {
		return reader.committedCount() == 1
	})

	select {
	case at := <-delivered:
		assert.False(t, at.Before(due), "scheduled message delivered early")
	default:
		t.Fatal("scheduled message never delivered")
	}
}

func TestDispatcher_RequeuesFarScheduledMessage(t *testing.T) {
	table := NewSubscriptionTable()
	handled := false
	table.Add("VerifyChargeSettlement", func(ctx context.Context, body json.RawMessage) error {
		handled = true
		return nil
	})

	due := time.Now().Add(time.Hour)
	reader := &fakeReader{queue: []kafka.Message{
		scheduledKafkaMessage(t, "VerifyChargeSettlement", "charge-1", testPayload{}, due),
	}}

	writer := &fakeWriter{}
	d := newTestDispatcher(reader, table)
	d.requeue = &Publisher{writer: writer, maxAttempts: 1}
	d.holdMax = time.Millisecond

	runDispatcher(t, d, func() bool {
		return reader.committedCount() == 1
	})

	// The message went back to the topic with its schedule intact
	assert.False(t, handled)
	require.Equal(t, 1, writer.writtenCount())

	var stamped string
	for _, h := range writer.written[0].Headers {
		if h.Key == headerScheduledAt {
			stamped = string(h.Value)
		}
	}
	require.NotEmpty(t, stamped)
	parsed, err := time.Parse(time.RFC3339Nano, stamped)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(due))
}

func TestDispatcher_FetchErrorTriggersRecovery(t *testing.T) {
	table := NewSubscriptionTable()
	conn := newTestConnection(1, func(ctx context.Context, address string) error {
		return nil
	})
	require.NoError(t, conn.TryConnect(context.Background()))
	conn.connected.Store(false)

	reader := &fakeReader{
		fetchErr: errors.New("broken pipe"),
		queue: []kafka.Message{
			kafkaMessage(t, "ChargeCreated", "charge-1", testPayload{}),
		},
	}

	d := newTestDispatcher(reader, table)
	d.conn = conn

	runDispatcher(t, d, func() bool {
		return reader.committedCount() == 1
	})

	assert.True(t, conn.IsConnected())
}
