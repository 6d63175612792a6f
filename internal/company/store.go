package company

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists company profiles. One profile per user; Upsert creates or
// updates the row keyed by UserID and fills in the generated id.
type Store interface {
	Upsert(ctx context.Context, c *Company) error
	Update(ctx context.Context, c *Company) error
	GetByID(ctx context.Context, id int64) (*Company, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Company, error)
	List(ctx context.Context, limit, offset int) ([]*Company, error)

	// MarkVerified conditionally flips the company verified flag. Returns
	// false when the company was already verified or does not exist.
	MarkVerified(ctx context.Context, id int64, at time.Time) (bool, error)
}
