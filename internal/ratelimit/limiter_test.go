package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"userapi/internal/platform/cache"
)

func newTestLimiter(limit int, window time.Duration) *Limiter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLimiter(cache.NewMemory(), "login", limit, window, logger)
}

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		res := limiter.Allow(ctx, "1.2.3.4")
		assert.True(t, res.Allowed)
	}

	res := limiter.Allow(ctx, "1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	// Other keys have their own budget.
	assert.True(t, limiter.Allow(ctx, "5.6.7.8").Allowed)
}

func TestLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(1, time.Minute)

	assert.True(t, limiter.Allow(ctx, "1.2.3.4").Allowed)
	assert.False(t, limiter.Allow(ctx, "1.2.3.4").Allowed)

	limiter.Reset(ctx, "1.2.3.4")
	assert.True(t, limiter.Allow(ctx, "1.2.3.4").Allowed)
}

func TestLimiter_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(1, time.Millisecond)

	assert.True(t, limiter.Allow(ctx, "1.2.3.4").Allowed)
	assert.False(t, limiter.Allow(ctx, "1.2.3.4").Allowed)

	time.Sleep(5 * time.Millisecond)
	assert.True(t, limiter.Allow(ctx, "1.2.3.4").Allowed)
}
