// Package kafka publishes strata events to a Kafka topic with segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/logger"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchTimeout bounds how long the writer buffers before flushing.
	// Defaults to 10ms.
	BatchTimeout time.Duration

	// Sync makes Publish wait for the broker to acknowledge each message.
	// By default writes are asynchronous: Publish returns once the message
	// is buffered and delivery failures are logged.
	Sync bool

	Logger *slog.Logger
}

// DefaultBatchTimeout is the flush interval when Config.BatchTimeout is
// unset.
const DefaultBatchTimeout = 10 * time.Millisecond

// Publisher writes each event as one message keyed by event type.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewPublisher creates a publisher backed by a kafka.Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	return NewPublisherWithWriter(NewWriter(c), c.Logger), nil
}

// NewWriter builds the kafka.Writer for c. Unless c.Sync is set the writer
// is asynchronous so a slow or unreachable broker never holds up the
// maintenance cycle that emits the event.
func NewWriter(c Config) *kafkago.Writer {
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	log := logger.OrNop(c.Logger).With("component", "kafka-publisher")

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           c.BatchTimeout,
		AllowAutoTopicCreation: true,
		Async:                  !c.Sync,
	}
	if w.Async {
		w.Completion = func(msgs []kafkago.Message, err error) {
			if err != nil {
				log.Warn("delivering events failed", "count", len(msgs), "topic", c.Topic, "error", err)
			}
		}
	}
	return w
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, log *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		logger: logger.OrNop(log).With("component", "kafka-publisher"),
	}
}

// Publish encodes event as JSON and writes it.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", event.EventID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.EventType),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published event", "event_type", event.EventType, "event_id", event.EventID)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
