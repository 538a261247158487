package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/towlink/towlink/internal/metrics"
)

// KafkaNotifier copies every push event to a topic for downstream consumers
// such as analytics or SMS fallbacks. Messages are keyed by ride so one
// ride's events stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaNotifier) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key := event.RideRequestID
	if key == "" {
		key = event.UserID
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		metrics.PushEvents.WithLabelValues("kafka", metrics.OutcomeError).Inc()
		return fmt.Errorf("write kafka message: %w", err)
	}
	metrics.PushEvents.WithLabelValues("kafka", metrics.OutcomeOK).Inc()
	return nil
}

func (k *KafkaNotifier) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
