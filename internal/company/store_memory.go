package company

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"userapi/pkg/sentinel"
)

// InMemoryStore keeps companies in a map for unit tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	companies map[int64]*Company
	nextID    int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{companies: make(map[int64]*Company), nextID: 1}
}

func (s *InMemoryStore) Upsert(_ context.Context, c *Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.companies {
		if existing.UserID == c.UserID {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
			c.UpdatedAt = time.Now()
			s.companies[c.ID] = cloneCompany(c)
			return nil
		}
	}
	c.ID = s.nextID
	s.nextID++
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.companies[c.ID] = cloneCompany(c)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, c *Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	s.companies[c.ID] = cloneCompany(c)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id int64) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCompany(c), nil
}

func (s *InMemoryStore) GetByUserID(_ context.Context, userID uuid.UUID) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.UserID == userID {
			return cloneCompany(c), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, limit, offset int) ([]*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, cloneCompany(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok || c.Verified {
		return false, nil
	}
	c.Verified = true
	verifiedAt := at
	c.VerifiedAt = &verifiedAt
	c.UpdatedAt = time.Now()
	return true, nil
}

func cloneCompany(c *Company) *Company {
	out := *c
	if c.Size != nil {
		size := *c.Size
		out.Size = &size
	}
	if c.CEOMobileVerifiedAt != nil {
		t := *c.CEOMobileVerifiedAt
		out.CEOMobileVerifiedAt = &t
	}
	if c.CEOShahkarVerifiedAt != nil {
		t := *c.CEOShahkarVerifiedAt
		out.CEOShahkarVerifiedAt = &t
	}
	if c.VerifiedAt != nil {
		t := *c.VerifiedAt
		out.VerifiedAt = &t
	}
	return &out
}
