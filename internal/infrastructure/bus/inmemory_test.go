package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name string `json:"name"`
}

func TestInMemoryBus_PublishDeliversToTypedHandler(t *testing.T) {
	b := NewInMemoryBus()
	var received []testPayload

	Subscribe(b, "ChargeCreated", func(ctx context.Context, msg testPayload) error {
		received = append(received, msg)
		return nil
	})

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{Name: "hello"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), msg, time.Time{}))

	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Name)
}

func TestInMemoryBus_HandlerErrorPropagates(t *testing.T) {
	b := NewInMemoryBus()
	boom := errors.New("boom")

	Subscribe(b, "ChargeCreated", func(ctx context.Context, msg testPayload) error {
		return boom
	})

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)

	assert.ErrorIs(t, b.Publish(context.Background(), msg, time.Time{}), boom)
}

func TestInMemoryBus_NoHandlersIsANoop(t *testing.T) {
	b := NewInMemoryBus()

	msg, err := NewMessage("Unrouted", "key", testPayload{})
	require.NoError(t, err)

	assert.NoError(t, b.Publish(context.Background(), msg, time.Time{}))
}

func TestInMemoryBus_TypedAndDynamicHandlersCoexist(t *testing.T) {
	b := NewInMemoryBus()
	var order []string

	Subscribe(b, "ChargeCreated", func(ctx context.Context, msg testPayload) error {
		order = append(order, "typed")
		return nil
	})
	b.Subscribe("ChargeCreated", func(ctx context.Context, body json.RawMessage) error {
		order = append(order, "dynamic")
		return nil
	})

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), msg, time.Time{}))

	assert.Equal(t, []string{"typed", "dynamic"}, order)
}

func TestInMemoryBus_DelayedPublishIsNotEarly(t *testing.T) {
	b := NewInMemoryBus()
	delivered := make(chan time.Time, 1)

	Subscribe(b, "ChargeCreated", func(ctx context.Context, msg testPayload) error {
		delivered <- time.Now()
		return nil
	})

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, b.Publish(context.Background(), msg, start.Add(50*time.Millisecond)))

	select {
	case at := <-delivered:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message never delivered")
	}
}

func TestInMemoryBus_PastScheduleDeliversImmediately(t *testing.T) {
	b := NewInMemoryBus()
	var count int

	Subscribe(b, "ChargeCreated", func(ctx context.Context, msg testPayload) error {
		count++
		return nil
	})

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), msg, time.Now().Add(-time.Minute)))

	assert.Equal(t, 1, count)
}

func TestInMemoryBus_Unsubscribe(t *testing.T) {
	b := NewInMemoryBus()
	var count int

	id := Subscribe(b, "ChargeCreated", func(ctx context.Context, msg testPayload) error {
		count++
		return nil
	})
	b.Unsubscribe("ChargeCreated", id)

	msg, err := NewMessage("ChargeCreated", "charge-1", testPayload{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), msg, time.Time{}))

	assert.Equal(t, 0, count)
}
