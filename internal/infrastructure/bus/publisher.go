package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is satisfied by *kafka.Writer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes messages to one channel's topic with persistence flagged
// and bounded retry against transient transport errors.
type Publisher struct {
	writer      messageWriter
	conn        *Connection
	maxAttempts int
}

// NewPublisher builds a publisher for a topic. RequireAll acks keep brokered
// messages durable across a broker restart.
func NewPublisher(brokers []string, topic string, conn *Connection, maxAttempts int) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Publisher{writer: writer, conn: conn, maxAttempts: maxAttempts}
}

// Message headers. A scheduled-at header marks a message the consumer must
// hold until its due time; the message itself is written immediately so
// pending schedules live in the broker and survive a process restart.
const (
	headerMessageType = "message-type"
	headerScheduledAt = "scheduled-at"
)

// Publish writes the message. A non-zero scheduledAt in the future is stamped
// into the scheduled-at header; the dispatcher defers delivery, never early.
func (p *Publisher) Publish(ctx context.Context, msg Message, scheduledAt time.Time) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	headers := []kafka.Header{
		{Key: headerMessageType, Value: []byte(msg.Type)},
	}
	if !scheduledAt.IsZero() && time.Until(scheduledAt) > 0 {
		headers = append(headers, kafka.Header{
			Key:   headerScheduledAt,
			Value: []byte(scheduledAt.UTC().Format(time.RFC3339Nano)),
		})
	}

	kafkaMsg := kafka.Message{
		Key:     []byte(msg.Key),
		Value:   data,
		Time:    time.Now(),
		Headers: headers,
	}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2^attempt seconds between attempts
			backoff := time.Duration(1<<attempt) * time.Second
			log.Printf("[Bus] Publish retry %d/%d for %s in %s", attempt+1, p.maxAttempts, msg.Type, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = p.writer.WriteMessages(ctx, kafkaMsg)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return fmt.Errorf("failed to publish %s: %w", msg.Type, lastErr)
		}

		log.Printf("[Bus] Transient publish failure for %s: %v", msg.Type, lastErr)
		if p.conn != nil {
			p.conn.HandleFailure(ctx, lastErr)
		}
	}

	return fmt.Errorf("failed to publish %s after %d attempts: %w", msg.Type, p.maxAttempts, lastErr)
}

// Close releases the underlying writer
func (p *Publisher) Close() error {
	if closer, ok := p.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// isTransient reports whether the error is a transport-level failure worth
// retrying. Business errors never land here; serialization and broker
// rejections fail fast.
func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// kafka.Error satisfies net.Error, so it has to be classified first or
	// permanent broker rejections would fall into the net.Error branch.
	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
