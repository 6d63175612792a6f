package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-agnostic view of a consumed record.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes a single consumed message. Returning an error marks the
// message as failed; the consumer logs it and moves on rather than stalling
// the partition.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer is a group consumer with manual commits. Offsets are committed
// after each processed batch, so a crash mid-batch redelivers at-least-once.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewConsumer joins the given group subscribed to topics, starting from the
// earliest offset when the group has no committed position.
func NewConsumer(brokers []string, group string, topics []string, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, logger: logger}, nil
}

// EnsureTopics creates the topics if they do not exist yet. Used at startup so
// a fresh cluster does not reject the subscription.
func (c *Consumer) EnsureTopics(ctx context.Context, topics ...string) error {
	adm := kadm.NewClient(c.client)
	responses, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range responses {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Run polls until the context is cancelled, dispatching every record to the
// handler and committing offsets after each batch.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error", "topic", topic, "partition", partition, "error", err)
		})

		var processed int
		fetches.EachRecord(func(record *kgo.Record) {
			msg := &Message{
				Topic:     record.Topic,
				Key:       record.Key,
				Value:     record.Value,
				Timestamp: record.Timestamp,
			}
			if err := handler.Handle(ctx, msg); err != nil {
				c.logger.Error("failed to process message",
					"topic", record.Topic,
					"key", string(record.Key),
					"error", err,
				)
			}
			processed++
		})

		if processed > 0 {
			if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
				c.logger.Error("failed to commit offsets", "error", err)
			}
		}
	}
}
