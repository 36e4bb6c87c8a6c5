// services/common/events/publisher.go
package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the class of event publishing errors.
var Error = errs.Class("events")

// Publisher announces stored objects to downstream pipeline stages.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events to one topic, keyed by storage key.
type Kafka struct {
	log    *zap.Logger
	writer MessageWriter
}

// NewKafka creates a publisher writing to topic on brokers.
func NewKafka(log *zap.Logger, brokers []string, topic string) *Kafka {
	return NewKafkaWithWriter(log, &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	})
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(log *zap.Logger, writer MessageWriter) *Kafka {
	return &Kafka{log: log, writer: writer}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, e *Event) error {
	payload, err := e.ToJSON()
	if err != nil {
		return Error.Wrap(err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return Error.Wrap(err)
	}
	k.log.Debug("published event", zap.String("type", string(e.Type)), zap.String("key", e.Key))
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return Error.Wrap(k.writer.Close())
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, *Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
