package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"userapi/internal/platform/cache"
)

// Result reports one rate limit decision.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter over the shared cache. It guards the
// credential and OTP endpoints against brute forcing; a cache failure lets
// the request through rather than locking everyone out.
type Limiter struct {
	cache  cache.Cache
	scope  string
	limit  int64
	window time.Duration
	logger *slog.Logger
}

func NewLimiter(c cache.Cache, scope string, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		cache:  c,
		scope:  scope,
		limit:  int64(limit),
		window: window,
		logger: logger,
	}
}

// Allow counts one attempt for the key and reports whether it is within the
// window's budget.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	counterKey := fmt.Sprintf("ratelimit.%s.%s", l.scope, key)
	n, err := l.cache.Incr(ctx, counterKey, l.window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, allowing request",
			"scope", l.scope, "error", err)
		return Result{Allowed: true, Remaining: l.limit}
	}
	if n > l.limit {
		return Result{Allowed: false, RetryAfter: l.window}
	}
	return Result{Allowed: true, Remaining: l.limit - n}
}

// Reset clears the counter, used after a successful authentication so past
// failures stop counting against the caller.
func (l *Limiter) Reset(ctx context.Context, key string) {
	counterKey := fmt.Sprintf("ratelimit.%s.%s", l.scope, key)
	if err := l.cache.Del(ctx, counterKey); err != nil {
		l.logger.Warn("rate limit counter reset failed", "scope", l.scope, "error", err)
	}
}
