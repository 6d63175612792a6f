package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows request listings.
type Filter struct {
	SubjectKind   SubjectKind
	Status        *Status
	AccountableID *uuid.UUID
	UserID        *uuid.UUID
	Limit         int
	Offset        int
}

// Store persists verification requests and their documents.
//
// Create is atomic over the request row and its document rows, and returns
// ErrDuplicateRequest when a non-Rejected request already exists for the
// subject. SetAccountable and MarkInspected are conditional single-row
// updates; false means the guard matched no row, never an error.
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id int64) (*Request, error)
	List(ctx context.Context, filter Filter) ([]*Request, error)

	// ListUnassigned returns Sent requests with no accountable, oldest first.
	ListUnassigned(ctx context.Context) ([]*Request, error)

	// SentAssignedCounts returns, per accountable, how many Sent requests are
	// currently assigned to them. Accountables holding nothing are absent.
	SentAssignedCounts(ctx context.Context) (map[uuid.UUID]int, error)

	// SetAccountable points the request at a new accountable unless the
	// request has reached a terminal status.
	SetAccountable(ctx context.Context, id int64, accountableID uuid.UUID) (bool, error)

	// MarkInspected records a decision unless the request has reached a
	// terminal status. It sets status, the accountable comment and the
	// inspection time in one guarded write.
	MarkInspected(ctx context.Context, id int64, status Status, comment string, at time.Time) (bool, error)

	GetDocument(ctx context.Context, id int64) (*Document, error)
}
