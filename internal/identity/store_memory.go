package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"userapi/pkg/sentinel"
)

// InMemoryStore keeps users in a map. It backs unit tests and mirrors the
// Postgres store's contract, including conditional updates.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[uuid.UUID]*User)}
}

func (s *InMemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return sentinel.ErrConflict
		}
		if user.Username != "" && existing.Username == user.Username {
			return sentinel.ErrConflict
		}
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	for id, existing := range s.users {
		if id == user.ID {
			continue
		}
		if existing.Email == user.Email {
			return sentinel.ErrConflict
		}
		if user.Username != "" && existing.Username == user.Username {
			return sentinel.ErrConflict
		}
	}
	user.UpdatedAt = time.Now()
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *InMemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) GetByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if username == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, user := range s.users {
		if user.Username == username {
			return cloneUser(user), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, user := range s.users {
		if filter.EmailContains != "" && !strings.Contains(user.Email, filter.EmailContains) {
			continue
		}
		if filter.IsStaff != nil && user.IsStaff != *filter.IsStaff {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, cloneUser(user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *InMemoryStore) EligibleAccountables(_ context.Context, excludeID *uuid.UUID) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, user := range s.users {
		if !eligible(user) {
			continue
		}
		if excludeID != nil && user.ID == *excludeID {
			continue
		}
		out = append(out, cloneUser(user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) SearchAccountables(_ context.Context, emailContains string, excludeID *uuid.UUID) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, user := range s.users {
		if !eligible(user) {
			continue
		}
		if excludeID != nil && user.ID == *excludeID {
			continue
		}
		if !strings.Contains(user.Email, emailContains) {
			continue
		}
		out = append(out, cloneUser(user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *InMemoryStore) MarkIdentityVerified(_ context.Context, userID, by uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.IdentityVerified {
		return false, nil
	}
	user.IdentityVerified = true
	user.IdentityVerifiedAt = &at
	verifier := by
	user.IdentityVerifiedBy = &verifier
	user.UpdatedAt = time.Now()
	return true, nil
}

// eligible mirrors the SQL predicate: explicit role membership, not the
// superuser shortcut, decides assignment candidacy.
func eligible(user *User) bool {
	if !user.IsActive || !user.IsStaff {
		return false
	}
	for _, role := range user.Roles {
		if role == RoleVerificationsAccountable {
			return true
		}
	}
	return false
}

func paginate(users []*User, limit, offset int) []*User {
	if offset > 0 {
		if offset >= len(users) {
			return nil
		}
		users = users[offset:]
	}
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	return users
}

func cloneUser(u *User) *User {
	c := *u
	c.Roles = append([]string{}, u.Roles...)
	c.AccessList = append([]string{}, u.AccessList...)
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	if u.MobileVerifiedAt != nil {
		t := *u.MobileVerifiedAt
		c.MobileVerifiedAt = &t
	}
	if u.ShahkarVerifiedAt != nil {
		t := *u.ShahkarVerifiedAt
		c.ShahkarVerifiedAt = &t
	}
	if u.AvatarUpdatedAt != nil {
		t := *u.AvatarUpdatedAt
		c.AvatarUpdatedAt = &t
	}
	if u.IdentityVerifiedAt != nil {
		t := *u.IdentityVerifiedAt
		c.IdentityVerifiedAt = &t
	}
	if u.IdentityVerifiedBy != nil {
		id := *u.IdentityVerifiedBy
		c.IdentityVerifiedBy = &id
	}
	return &c
}
