//go:build integration

package consumer_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"userapi/internal/events"
	"userapi/internal/events/consumer"
	"userapi/internal/identity"
	"userapi/internal/platform/kafka"
	"userapi/pkg/testutil/containers"
)

// TestPipelinePublishAndMirror runs the full event path against a real
// broker: KafkaStore publishes an envelope, the group consumer picks it up
// and the mirror applies it to a local user store.
func TestPipelinePublishAndMirror(t *testing.T) {
	brokers := containers.NewKafkaBrokers(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer, err := kafka.NewProducer(brokers, logger)
	require.NoError(t, err)
	defer producer.Close()

	store := identity.NewInMemoryStore()
	router := consumer.NewRouter(logger)
	consumer.NewMirror(store, logger).Register(router)

	group, err := kafka.NewConsumer(brokers, "userapi-test", router.Topics(), logger)
	require.NoError(t, err)
	require.NoError(t, group.EnsureTopics(ctx, router.Topics()...))

	done := make(chan error, 1)
	go func() { done <- group.Run(ctx, router) }()

	publisher := events.NewKafkaStore(producer, logger, nil)
	user := &identity.User{ID: uuid.New(), Email: "mirror@acme.example", IsActive: true}
	publisher.Publish(ctx, events.New(events.UserCreated, user.ID.String(), user))

	require.Eventually(t, func() bool {
		mirrored, err := store.GetByID(context.Background(), user.ID)
		return err == nil && mirrored.Email == user.Email
	}, 30*time.Second, 200*time.Millisecond)

	publisher.Publish(ctx, events.New(events.UserDeleted, user.ID.String(), map[string]string{"id": user.ID.String()}))
	require.Eventually(t, func() bool {
		_, err := store.GetByID(context.Background(), user.ID)
		return err != nil
	}, 30*time.Second, 200*time.Millisecond)

	cancel()
	<-done
}
