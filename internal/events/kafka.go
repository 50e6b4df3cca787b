package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// KafkaSink publishes ride lifecycle events to a Kafka topic keyed by ride ID
// so a ride's events stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a new KafkaSink.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaSink{writer: w}
}

// Publish writes one event. The caller owns the deadline via ctx.
func (k *KafkaSink) Publish(ctx context.Context, event domain.RideEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RideID),
		Value: b,
	})
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

var _ service.EventSink = (*KafkaSink)(nil)
