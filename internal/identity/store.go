package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows admin user listings.
type Filter struct {
	EmailContains string
	IsStaff       *bool
	IsActive      *bool
	Limit         int
	Offset        int
}

// Store persists users. Implementations return sentinel.ErrNotFound for
// missing rows and sentinel.ErrConflict for uniqueness violations.
type Store interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, filter Filter) ([]*User, error)

	// EligibleAccountables returns the staff users that may be assigned
	// verification requests, excluding excludeID when set, ordered by id.
	EligibleAccountables(ctx context.Context, excludeID *uuid.UUID) ([]*User, error)

	// SearchAccountables filters eligible accountables by an email fragment,
	// ordered by email. Backs the assignables search endpoint.
	SearchAccountables(ctx context.Context, emailContains string, excludeID *uuid.UUID) ([]*User, error)

	// MarkIdentityVerified conditionally flips the identity verified flag.
	// Returns false when the user was already verified (zero rows affected).
	MarkIdentityVerified(ctx context.Context, userID, by uuid.UUID, at time.Time) (bool, error)
}
