package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter captures written messages and fails a programmable number of times
type fakeWriter struct {
	mu       sync.Mutex
	written  []kafka.Message
	failures int
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) writtenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func TestPublisher_PublishWritesMessage(t *testing.T) {
	writer := &fakeWriter{}
	p := &Publisher{writer: writer, maxAttempts: 3}

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{Name: "hello"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg, time.Time{}))

	require.Len(t, writer.written, 1)
	assert.Equal(t, []byte("charge-1"), writer.written[0].Key)

	var decoded Message
	require.NoError(t, json.Unmarshal(writer.written[0].Value, &decoded))
	assert.Equal(t, "ChargeCreated", decoded.Type)
}

func TestPublisher_MessageTypeHeader(t *testing.T) {
	writer := &fakeWriter{}
	p := &Publisher{writer: writer, maxAttempts: 3}

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg, time.Time{}))

	require.Len(t, writer.written, 1)
	headers := writer.written[0].Headers
	require.NotEmpty(t, headers)
	assert.Equal(t, "message-type", headers[0].Key)
	assert.Equal(t, []byte("ChargeCreated"), headers[0].Value)
}

func TestPublisher_NonTransientErrorFailsFast(t *testing.T) {
	writer := &fakeWriter{failures: 5, err: errors.New("message too large")}
	p := &Publisher{writer: writer, maxAttempts: 3}

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)

	err = p.Publish(context.Background(), msg, time.Time{})

	assert.Error(t, err)
	// One attempt only: business/broker rejections are never retried
	assert.Equal(t, 4, writer.failures)
}

func TestPublisher_TransientErrorExhaustsAttempts(t *testing.T) {
	writer := &fakeWriter{failures: 5, err: syscall.ECONNREFUSED}
	p := &Publisher{writer: writer, maxAttempts: 1}

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)

	err = p.Publish(context.Background(), msg, time.Time{})

	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestPublisher_BrokerRejectionFailsFast(t *testing.T) {
	writer := &fakeWriter{failures: 5, err: kafka.MessageSizeTooLarge}
	p := &Publisher{writer: writer, maxAttempts: 3}

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)

	err = p.Publish(context.Background(), msg, time.Time{})

	assert.ErrorIs(t, err, kafka.MessageSizeTooLarge)
	assert.Equal(t, 4, writer.failures)
}

func TestPublisher_ScheduledPublishIsWrittenImmediately(t *testing.T) {
	writer := &fakeWriter{}
	p := &Publisher{writer: writer, maxAttempts: 3}
	due := time.Now().Add(45 * time.Minute)

	msg, err := NewMessage("VerifyChargeSettlement", "charge-1", testPayload{})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg, due))

	// The write is not deferred; the schedule rides in a header so it
	// survives a restart of this process.
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

func TestPublisher_PastScheduleCarriesNoHeader(t *testing.T) {
	writer := &fakeWriter{}
	p := &Publisher{writer: writer, maxAttempts: 3}

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg, time.Now().Add(-time.Minute)))

	require.Equal(t, 1, writer.writtenCount())
	for _, h := range writer.written[0].Headers {
		assert.NotEqual(t, headerScheduledAt, h.Key)
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(syscall.ECONNREFUSED))
	assert.True(t, isTransient(syscall.ECONNRESET))
	assert.True(t, isTransient(syscall.EPIPE))
	assert.True(t, isTransient(io.ErrUnexpectedEOF))
	assert.True(t, isTransient(kafka.LeaderNotAvailable))

	assert.False(t, isTransient(errors.New("serialization failed")))
	assert.False(t, isTransient(kafka.MessageSizeTooLarge))
}
