package verification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"userapi/pkg/sentinel"
)

// InMemoryStore keeps requests in a map. It enforces the same one-active-
// request-per-subject rule the partial unique index enforces in Postgres.
type InMemoryStore struct {
	mu        sync.RWMutex
	requests  map[int64]*Request
	documents map[int64]*Document
	nextReqID int64
	nextDocID int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests:  make(map[int64]*Request),
		documents: make(map[int64]*Document),
		nextReqID: 1,
		nextDocID: 1,
	}
}

func (s *InMemoryStore) Create(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.Subject == req.Subject && existing.Status != StatusRejected {
			return ErrDuplicateRequest
		}
	}
	now := time.Now()
	req.ID = s.nextReqID
	s.nextReqID++
	req.CreatedAt = now
	req.UpdatedAt = now
	for i := range req.Documents {
		req.Documents[i].ID = s.nextDocID
		s.nextDocID++
		req.Documents[i].CreatedAt = now
		doc := req.Documents[i]
		s.documents[doc.ID] = &doc
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Request
	for _, req := range s.requests {
		if filter.SubjectKind != "" && req.Subject.Kind != filter.SubjectKind {
			continue
		}
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.AccountableID != nil {
			if req.AccountableID == nil || *req.AccountableID != *filter.AccountableID {
				continue
			}
		}
		if filter.UserID != nil && req.UserID != *filter.UserID {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListUnassigned(_ context.Context) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Request
	for _, req := range s.requests {
		if req.Status == StatusSent && req.AccountableID == nil {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) SentAssignedCounts(_ context.Context) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for _, req := range s.requests {
		if req.Status == StatusSent && req.AccountableID != nil {
			counts[*req.AccountableID]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) SetAccountable(_ context.Context, id int64, accountableID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status.Terminal() {
		return false, nil
	}
	assigned := accountableID
	req.AccountableID = &assigned
	req.UpdatedAt = time.Now()
	return true, nil
}

func (s *InMemoryStore) MarkInspected(_ context.Context, id int64, status Status, comment string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status.Terminal() {
		return false, nil
	}
	req.Status = status
	req.AccountableComment = comment
	inspectedAt := at
	req.InspectedAt = &inspectedAt
	req.UpdatedAt = time.Now()
	return true, nil
}

func (s *InMemoryStore) GetDocument(_ context.Context, id int64) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *doc
	return &out, nil
}

func cloneRequest(r *Request) *Request {
	out := *r
	if r.AccountableID != nil {
		id := *r.AccountableID
		out.AccountableID = &id
	}
	if r.InspectedAt != nil {
		t := *r.InspectedAt
		out.InspectedAt = &t
	}
	out.Documents = append([]Document{}, r.Documents...)
	return &out
}
