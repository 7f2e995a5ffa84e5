package bus

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageReader is satisfied by *kafka.Reader
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Dispatcher runs one channel's consumer loop: fetch, deserialize by routing
// key, dispatch to every registered handler in registration order, and commit
// only after all handlers succeed. A failed delivery is not committed and is
// re-dispatched, which makes delivery at-least-once; handlers must tolerate
// replay.
type Dispatcher struct {
	name       string
	reader     messageReader
	table      *SubscriptionTable
	conn       *Connection
	retryDelay time.Duration

	// Scheduled messages due within holdMax are held in-process; anything
	// further out is requeued through this publisher so the schedule stays
	// broker-resident and the partition is not blocked.
	requeue *Publisher
	holdMax time.Duration
}

// NewDispatcher builds a consumer for a topic within a consumer group.
// Command and event channels get separate dispatchers over separate readers.
func NewDispatcher(name string, brokers []string, topic, groupID string, table *SubscriptionTable, conn *Connection) *Dispatcher {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Dispatcher{
		name:       name,
		reader:     reader,
		table:      table,
		conn:       conn,
		retryDelay: 2 * time.Second,
		requeue:    NewPublisher(brokers, topic, conn, 3),
		holdMax:    10 * time.Second,
	}
}

// Run consumes until the context is cancelled. One message is processed
// serially end-to-end before the next fetch, preserving per-aggregate
// projection-update ordering within the consumer group.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		kafkaMsg, err := d.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[%s] Error fetching message: %v", d.name, err)
			if d.conn != nil {
				d.conn.HandleFailure(ctx, err)
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(kafkaMsg.Value, &msg); err != nil {
			// Undecodable payloads would redeliver forever; drop them.
			log.Printf("[%s] Dropping malformed message: %v", d.name, err)
			d.commit(ctx, kafkaMsg)
			continue
		}

		if due, ok := scheduledFor(kafkaMsg); ok {
			requeued, err := d.awaitSchedule(ctx, msg, due)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if requeued {
				d.commit(ctx, kafkaMsg)
				continue
			}
		}

		if err := d.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		d.commit(ctx, kafkaMsg)
	}
}

// scheduledFor reads the due time stamped by the publisher, if any
func scheduledFor(msg kafka.Message) (time.Time, bool) {
	for _, h := range msg.Headers {
		if h.Key != headerScheduledAt {
			continue
		}
		due, err := time.Parse(time.RFC3339Nano, string(h.Value))
		if err != nil {
			return time.Time{}, false
		}
		return due, true
	}
	return time.Time{}, false
}

// awaitSchedule waits out a not-yet-due message. Waits up to holdMax happen
// in-process; a message due later is republished with its schedule intact and
// reported as requeued, so a crash never loses a pending schedule.
func (d *Dispatcher) awaitSchedule(ctx context.Context, msg Message, due time.Time) (requeued bool, err error) {
	wait := time.Until(due)
	if wait <= 0 {
		return false, nil
	}
	if d.requeue != nil && wait > d.holdMax {
		wait = d.holdMax
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(wait):
	}

	if d.requeue == nil || !time.Now().Before(due) {
		return false, nil
	}
	if err := d.requeue.Publish(ctx, msg, due); err != nil {
		log.Printf("[%s] Failed to requeue scheduled %s (key %s): %v", d.name, msg.Type, msg.Key, err)
		return false, err
	}
	return true, nil
}

// dispatch runs all handlers for the message, re-running the delivery after
// retryDelay until every handler succeeds or the context ends.
func (d *Dispatcher) dispatch(ctx context.Context, msg Message) error {
	handlers := d.table.Handlers(msg.Type)
	if len(handlers) == 0 {
		return nil
	}

	for {
		err := runHandlers(ctx, handlers, msg)
		if err == nil {
			return nil
		}

		log.Printf("[%s] CRITICAL: handler failed for %s (key %s), redelivering: %v", d.name, msg.Type, msg.Key, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
}

func runHandlers(ctx context.Context, handlers []Handler, msg Message) error {
	for _, handler := range handlers {
		if err := handler(ctx, msg.Body); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) commit(ctx context.Context, msg kafka.Message) {
	if err := d.reader.CommitMessages(ctx, msg); err != nil {
		log.Printf("[%s] Failed to commit offset: %v", d.name, err)
	}
}

// Close releases the underlying reader and the requeue writer
func (d *Dispatcher) Close() error {
	if d.requeue != nil {
		_ = d.requeue.Close()
	}
	return d.reader.Close()
}
