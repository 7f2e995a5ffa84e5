package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// dialFunc probes one broker address. Overridable in tests.
type dialFunc func(ctx context.Context, address string) error

// Connection supervises broker reachability for one channel. TryConnect is
// guarded by a mutex so only one reconnect attempt proceeds at a time; all
// transport failure callbacks funnel into it.
type Connection struct {
	mu          sync.Mutex
	brokers     []string
	maxAttempts int
	baseBackoff time.Duration
	connected   atomic.Bool
	dial        dialFunc
}

func NewConnection(brokers []string, maxAttempts int, baseBackoff time.Duration) *Connection {
	return &Connection{
		brokers:     brokers,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		dial:        dialBroker,
	}
}

func dialBroker(ctx context.Context, address string) error {
	conn, err := kafka.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// IsConnected reports whether the last connect attempt succeeded
func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// TryConnect dials the brokers with exponential backoff, up to the configured
// attempt count. Concurrent callers serialize on the lock; a caller that finds
// the connection already up returns immediately.
func (c *Connection) TryConnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			log.Printf("[Bus] Reconnect attempt %d/%d in %s", attempt+1, c.maxAttempts, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.dialAny(ctx)
		if lastErr == nil {
			c.connected.Store(true)
			log.Printf("[Bus] Connected to broker")
			return nil
		}
		log.Printf("[Bus] Connect attempt %d/%d failed: %v", attempt+1, c.maxAttempts, lastErr)
	}

	return fmt.Errorf("broker unreachable after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Connection) dialAny(ctx context.Context) error {
	var lastErr error
	for _, broker := range c.brokers {
		if err := c.dial(ctx, broker); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// HandleFailure marks the connection down and funnels into TryConnect.
// Reconnection keeps being retriggered by subsequent failures, so it is
// unbounded in time while bounded in attempts per trigger.
func (c *Connection) HandleFailure(ctx context.Context, cause error) {
	if c.connected.CompareAndSwap(true, false) {
		log.Printf("[Bus] Connection lost: %v", cause)
	}
	if err := c.TryConnect(ctx); err != nil {
		log.Printf("[Bus] Reconnect failed: %v", err)
	}
}
