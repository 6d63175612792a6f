package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"userapi/internal/events"
	"userapi/internal/platform/kafka"
)

// HandlerFunc processes the payload of one event type.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Router dispatches consumed messages to type-specific handlers. Unrecognized
// types are logged and skipped so the partition keeps moving.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register adds a handler for a specific event type.
func (r *Router) Register(name events.Name, fn HandlerFunc) {
	r.handlers[string(name)] = fn
}

// Topics lists every registered event type, for the consumer subscription.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		topics = append(topics, name)
	}
	return topics
}

// Handle decodes the envelope and routes by its type tag.
func (r *Router) Handle(ctx context.Context, msg *kafka.Message) error {
	var envelope events.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	handler, ok := r.handlers[envelope.Type]
	if !ok {
		r.logger.Warn("no handler for event type, skipping message",
			"type", envelope.Type,
			"key", envelope.Key,
		)
		return nil
	}
	return handler(ctx, envelope.Payload)
}
