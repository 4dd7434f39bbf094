package kafka

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes sensor samples, for simulators and tests.
type Writer struct {
	writer *kafkago.Writer
}

// NewWriter creates a producer for topic.
func NewWriter(brokers []string, topic string) (*Writer, error) {
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}

	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	return &Writer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
		},
	}, nil
}

// Publish sends the samples in one batch.
func (w *Writer) Publish(ctx context.Context, samples ...Sample) error {
	if len(samples) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(samples))

	for i, s := range samples {
		msg, err := serializeToMessage(s)
		if err != nil {
			return err
		}

		msgs[i] = msg
	}

	return w.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}
