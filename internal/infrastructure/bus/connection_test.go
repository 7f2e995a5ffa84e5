package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(maxAttempts int, dial dialFunc) *Connection {
	return &Connection{
		brokers:     []string{"broker-1:9092", "broker-2:9092"},
		maxAttempts: maxAttempts,
		baseBackoff: time.Millisecond,
		dial:        dial,
	}
}

func TestConnection_TryConnectSucceeds(t *testing.T) {
	var dialed []string
	conn := newTestConnection(3, func(ctx context.Context, address string) error {
		dialed = append(dialed, address)
		return nil
	})

	require.NoError(t, conn.TryConnect(context.Background()))

	assert.True(t, conn.IsConnected())
	assert.Equal(t, []string{"broker-1:9092"}, dialed)
}

func TestConnection_TryConnectFallsBackToNextBroker(t *testing.T) {
	conn := newTestConnection(3, func(ctx context.Context, address string) error {
		if address == "broker-1:9092" {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, conn.TryConnect(context.Background()))
	assert.True(t, conn.IsConnected())
}

func TestConnection_TryConnectRetriesWithBackoff(t *testing.T) {
	attempts := 0
	conn := newTestConnection(5, func(ctx context.Context, address string) error {
		if address != "broker-1:9092" {
			return errors.New("unreachable")
		}
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, conn.TryConnect(context.Background()))

	assert.True(t, conn.IsConnected())
	assert.Equal(t, 3, attempts)
}

func TestConnection_TryConnectExhaustsAttempts(t *testing.T) {
	attempts := 0
	conn := newTestConnection(3, func(ctx context.Context, address string) error {
		if address == "broker-1:9092" {
			attempts++
		}
		return errors.New("connection refused")
	})

	err := conn.TryConnect(context.Background())

	assert.ErrorContains(t, err, "after 3 attempts")
	assert.False(t, conn.IsConnected())
	assert.Equal(t, 3, attempts)
}

func TestConnection_AlreadyConnectedReturnsImmediately(t *testing.T) {
	dials := 0
	conn := newTestConnection(3, func(ctx context.Context, address string) error {
		dials++
		return nil
	})

	require.NoError(t, conn.TryConnect(context.Background()))
	require.NoError(t, conn.TryConnect(context.Background()))

	assert.Equal(t, 1, dials)
}

func TestConnection_TryConnectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := newTestConnection(10, func(ctx context.Context, address string) error {
		cancel()
		return errors.New("connection refused")
	})

	err := conn.TryConnect(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, conn.IsConnected())
}

func TestConnection_HandleFailureReconnects(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conn := newTestConnection(3, func(ctx context.Context, address string) error {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return nil
	})

	require.NoError(t, conn.TryConnect(context.Background()))
	require.True(t, conn.IsConnected())

	conn.HandleFailure(context.Background(), errors.New("broken pipe"))

	assert.True(t, conn.IsConnected())
	assert.Equal(t, 2, dials)
}

func TestConnection_ConcurrentFailuresSingleReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conn := newTestConnection(3, func(ctx context.Context, address string) error {
		mu.Lock()
		defer mu.Unlock()
		dials++
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	require.NoError(t, conn.TryConnect(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.HandleFailure(context.Background(), errors.New("broken pipe"))
		}()
	}
	wg.Wait()

	assert.True(t, conn.IsConnected())
	// Callers that find the connection restored return without dialing again
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, dials, 11)
}
