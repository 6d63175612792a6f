package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"userapi/internal/platform/kafka"
	"userapi/internal/platform/metrics"
)

// Publisher is the port services emit events through. Publishing is
// best-effort: failures are logged and counted, never surfaced to the caller,
// so entity state and published events can diverge when the broker is down.
// That gap is accepted; delivery is not part of the entity-write transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// KafkaStore publishes events to Kafka, one topic per event type.
type KafkaStore struct {
	producer *kafka.Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewKafkaStore(producer *kafka.Producer, logger *slog.Logger, m *metrics.Metrics) *KafkaStore {
	return &KafkaStore{producer: producer, logger: logger, metrics: m}
}

func (s *KafkaStore) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "type", event.Name, "error", err)
		s.recordFailure(event.Name)
		return
	}
	envelope := Envelope{
		Type:      string(event.Name),
		Key:       event.Key,
		Payload:   payload,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Error("failed to marshal event envelope", "type", event.Name, "error", err)
		s.recordFailure(event.Name)
		return
	}

	name := event.Name
	s.producer.Publish(ctx, string(event.Name), []byte(event.Key), value, func(err error) {
		if err != nil {
			s.recordFailure(name)
			return
		}
		if s.metrics != nil {
			s.metrics.EventsPublished.WithLabelValues(string(name)).Inc()
		}
	})
}

func (s *KafkaStore) recordFailure(name Name) {
	if s.metrics != nil {
		s.metrics.EventPublishFailures.WithLabelValues(string(name)).Inc()
	}
}
