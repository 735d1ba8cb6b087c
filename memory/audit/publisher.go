package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher mirrors audit lines to an external stream. Failures are logged
// by the caller and never fail the append.
type Publisher interface {
	Publish(ctx context.Context, stream, key string, line []byte) error
	Close() error
}

// NopPublisher drops every line.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, []byte) error { return nil }
func (NopPublisher) Close() error                                         { return nil }

// KafkaPublisher writes each line as one message to a single topic, keyed by
// line id, with the stream name in a header.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates an async writer for topic on brokers. Publish
// only enqueues; delivery failures are logged from the completion callback.
// No connection is made until the first publish.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		WriteTimeout: 5 * time.Second,
		Async:        true,
		Completion:   logDelivery,
	}}
}

func logDelivery(messages []kafka.Message, err error) {
	if err != nil {
		log.WithError(err).WithField("messages", len(messages)).Warn("kafka audit delivery failed")
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, stream, key string, line []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   line,
		Headers: []kafka.Header{{Key: "stream", Value: []byte(stream)}},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
