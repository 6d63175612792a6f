package verification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"userapi/internal/identity"
)

// StaffDirectory exposes the user-store queries the assignment engine needs.
// identity.Store satisfies it.
type StaffDirectory interface {
	EligibleAccountables(ctx context.Context, excludeID *uuid.UUID) ([]*identity.User, error)
	SearchAccountables(ctx context.Context, emailContains string, excludeID *uuid.UUID) ([]*identity.User, error)
}

// Engine picks an accountable for a request and applies the assignment with a
// conditional write, so a concurrent terminal transition wins over a late
// assignment.
type Engine struct {
	store     Store
	directory StaffDirectory
}

func NewEngine(store Store, directory StaffDirectory) *Engine {
	return &Engine{store: store, directory: directory}
}

// Assign points the request at candidate, or at the least-loaded eligible
// accountable when candidate is nil. The current holder is excluded from
// auto-selection so reassignment always changes hands.
//
// A nil return with nil error means nothing was assigned: the candidate is
// the current holder, the candidate is ineligible, no eligible accountable
// exists, or the request reached a terminal status. Callers emit an event
// only on a non-nil return.
func (e *Engine) Assign(ctx context.Context, req *Request, candidate *identity.User) (*identity.User, error) {
	if candidate == nil {
		var err error
		candidate, err = e.leastLoaded(ctx, req.AccountableID)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}
	}

	if req.AccountableID != nil && candidate.ID == *req.AccountableID {
		return nil, nil
	}
	if !candidate.IsActive || !candidate.IsStaff || !candidate.HasCapability(identity.RoleVerificationsAccountable) {
		return nil, nil
	}

	ok, err := e.store.SetAccountable(ctx, req.ID, candidate.ID)
	if err != nil {
		return nil, fmt.Errorf("assign request %d: %w", req.ID, err)
	}
	if !ok {
		return nil, nil
	}
	assigned := candidate.ID
	req.AccountableID = &assigned
	return candidate, nil
}

// leastLoaded returns the eligible accountable holding the fewest Sent
// requests. The directory orders candidates by id, so ties go to the lowest
// id.
func (e *Engine) leastLoaded(ctx context.Context, excludeID *uuid.UUID) (*identity.User, error) {
	pool, err := e.directory.EligibleAccountables(ctx, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list eligible accountables: %w", err)
	}
	if len(pool) == 0 {
		return nil, nil
	}
	counts, err := e.store.SentAssignedCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	best := pool[0]
	for _, candidate := range pool[1:] {
		if counts[candidate.ID] < counts[best.ID] {
			best = candidate
		}
	}
	return best, nil
}
