package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userapi/pkg/sentinel"
)

func seedUser(t *testing.T, store *InMemoryStore, mutate func(*User)) *User {
	t.Helper()
	user := &User{
		ID:       uuid.New(),
		Email:    uuid.NewString() + "@acme.example",
		IsActive: true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func TestInMemoryStore_UniqueEmail(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store, nil)

	err := store.Create(context.Background(), &User{ID: uuid.New(), Email: user.Email})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_UniqueUsername(t *testing.T) {
	store := NewInMemoryStore()
	seedUser(t, store, func(u *User) { u.Username = "reza" })

	err := store.Create(context.Background(), &User{ID: uuid.New(), Email: "x@acme.example", Username: "reza"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// Empty usernames do not collide with each other.
	seedUser(t, store, nil)
	seedUser(t, store, nil)
}

func TestInMemoryStore_UpdateKeepsUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	first := seedUser(t, store, func(u *User) { u.Username = "reza" })
	second := seedUser(t, store, nil)

	second.Username = "reza"
	assert.ErrorIs(t, store.Update(ctx, second), sentinel.ErrConflict)

	second.Username = ""
	second.Email = first.Email
	assert.ErrorIs(t, store.Update(ctx, second), sentinel.ErrConflict)

	// Updating a user against their own email and username is not a conflict.
	first.FirstName = "Reza"
	require.NoError(t, store.Update(ctx, first))
}

func TestInMemoryStore_ClonesOnRead(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store, func(u *User) { u.Roles = []string{RoleVerificationsAccountable} })

	got, err := store.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	got.Roles[0] = "mutated"

	again, err := store.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleVerificationsAccountable, again.Roles[0])
}

func TestInMemoryStore_List(t *testing.T) {
	store := NewInMemoryStore()
	seedUser(t, store, func(u *User) { u.Email = "a-staff@acme.example"; u.IsStaff = true })
	seedUser(t, store, func(u *User) { u.Email = "b-plain@acme.example" })
	seedUser(t, store, func(u *User) { u.Email = "c-off@acme.example"; u.IsActive = false })

	staff := true
	got, err := store.List(context.Background(), Filter{IsStaff: &staff})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-staff@acme.example", got[0].Email)

	active := true
	got, err = store.List(context.Background(), Filter{IsActive: &active})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.List(context.Background(), Filter{EmailContains: "plain"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b-plain@acme.example", got[0].Email)

	got, err = store.List(context.Background(), Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInMemoryStore_EligibleAccountables(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	accountable := func(u *User) {
		u.IsStaff = true
		u.Roles = []string{RoleVerificationsAccountable}
	}

	a := seedUser(t, store, accountable)
	b := seedUser(t, store, accountable)
	seedUser(t, store, func(u *User) { u.IsStaff = true })
	seedUser(t, store, func(u *User) { accountable(u); u.IsActive = false })
	// Superusers without the explicit role are not assignment candidates.
	seedUser(t, store, func(u *User) { u.IsStaff = true; u.IsSuperuser = true })

	got, err := store.EligibleAccountables(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.EligibleAccountables(ctx, &a.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestInMemoryStore_SearchAccountables(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedUser(t, store, func(u *User) {
		u.Email = "inspector-one@acme.example"
		u.IsStaff = true
		u.Roles = []string{RoleVerificationsAccountable}
	})
	seedUser(t, store, func(u *User) {
		u.Email = "inspector-two@acme.example"
		u.IsStaff = true
		u.Roles = []string{RoleVerificationsAccountable}
	})
	seedUser(t, store, func(u *User) { u.Email = "inspector-plain@acme.example" })

	got, err := store.SearchAccountables(ctx, "inspector", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inspector-one@acme.example", got[0].Email)

	got, err = store.SearchAccountables(ctx, "two", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInMemoryStore_MarkIdentityVerified(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	user := seedUser(t, store, nil)
	verifier := uuid.New()
	at := time.Now()

	changed, err := store.MarkIdentityVerified(ctx, user.ID, verifier, at)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IdentityVerified)
	require.NotNil(t, got.IdentityVerifiedBy)
	assert.Equal(t, verifier, *got.IdentityVerifiedBy)

	changed, err = store.MarkIdentityVerified(ctx, user.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, changed, "second verification is a no-op")

	changed, err = store.MarkIdentityVerified(ctx, uuid.New(), verifier, at)
	require.NoError(t, err)
	assert.False(t, changed, "unknown user is a no-op")
}
