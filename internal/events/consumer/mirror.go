package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"userapi/internal/events"
	"userapi/internal/identity"
	"userapi/pkg/sentinel"
)

// Mirror applies user lifecycle events to an identity store, maintaining a
// local copy of user state for services that consume the stream. Replayed
// events are tolerated, so the handlers stay safe under at-least-once
// delivery.
type Mirror struct {
	store  identity.Store
	logger *slog.Logger
}

func NewMirror(store identity.Store, logger *slog.Logger) *Mirror {
	return &Mirror{store: store, logger: logger}
}

// Register subscribes the mirror to the user lifecycle topics.
func (m *Mirror) Register(r *Router) {
	r.Register(events.UserCreated, m.handleCreated)
	r.Register(events.UserUpdated, m.handleUpdated)
	r.Register(events.UserDeleted, m.handleDeleted)
}

func (m *Mirror) handleCreated(ctx context.Context, payload json.RawMessage) error {
	var user identity.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return fmt.Errorf("decode user payload: %w", err)
	}
	if err := m.store.Create(ctx, &user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			m.logger.Warn("user already exists, skipping create", "id", user.ID)
			return nil
		}
		return fmt.Errorf("create user %s: %w", user.ID, err)
	}
	return nil
}

func (m *Mirror) handleUpdated(ctx context.Context, payload json.RawMessage) error {
	var user identity.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return fmt.Errorf("decode user payload: %w", err)
	}
	err := m.store.Update(ctx, &user)
	if errors.Is(err, sentinel.ErrNotFound) {
		// The create event may have been missed; the update carries full state.
		return m.handleCreated(ctx, payload)
	}
	if err != nil {
		return fmt.Errorf("update user %s: %w", user.ID, err)
	}
	return nil
}

func (m *Mirror) handleDeleted(ctx context.Context, payload json.RawMessage) error {
	var ref struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("decode user reference: %w", err)
	}
	err := m.store.Delete(ctx, ref.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		m.logger.Warn("user already deleted", "id", ref.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete user %s: %w", ref.ID, err)
	}
	return nil
}
