package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/conference-site/schedule-api/internal/ports/out/events"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes RSVP events to a Kafka topic, keyed by session id so that
// events for one session stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher initializes a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
}

func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	const op = "kafka.Publisher.Publish"

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	const op = "kafka.Publisher.Close"

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
