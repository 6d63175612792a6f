//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// NewKafkaBrokers starts a disposable Redpanda container and returns its seed
// broker address. The container is terminated with the test.
func NewKafkaBrokers(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "redpandadata/redpanda:v24.3.1")
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("starting redpanda container: %v", err)
	}

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		t.Fatalf("redpanda seed broker: %v", err)
	}
	return []string{broker}
}
