package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer wraps a franz-go client for asynchronous publishing. Delivery
// callbacks log failures; callers never block on broker acknowledgement.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer connects to the brokers with acks=all, retries and compression.
func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.ProducerLinger(100*time.Millisecond),
		kgo.RecordRetries(5),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// Publish hands a record to the client and returns immediately. The callback
// reports the delivery outcome through the supplied onDone hook, which may be
// nil when the caller only wants logging.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, onDone func(error)) {
	record := &kgo.Record{Topic: topic, Key: key, Value: value, Timestamp: time.Now()}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to deliver record",
				"topic", r.Topic,
				"key", string(r.Key),
				"error", err,
			)
		} else {
			p.logger.Debug("record delivered",
				"topic", r.Topic,
				"partition", r.Partition,
				"offset", r.Offset,
			)
		}
		if onDone != nil {
			onDone(err)
		}
	})
}

// Close flushes buffered records before releasing the client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Error("failed to flush producer", "error", err)
	}
	p.client.Close()
}
