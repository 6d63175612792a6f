//go:build integration

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userapi/internal/identity"
	"userapi/pkg/sentinel"
	"userapi/pkg/testutil/containers"
)

func newPostgresUser(t *testing.T, store *identity.PostgresStore, mutate func(*identity.User)) *identity.User {
	t.Helper()
	user := &identity.User{
		ID:         uuid.New(),
		Email:      uuid.NewString() + "@acme.example",
		Roles:      []string{},
		AccessList: []string{},
		IsActive:   true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func TestPostgresStore_Users(t *testing.T) {
	ctx := context.Background()
	db := containers.NewPostgresDB(t)
	store := identity.NewPostgres(db)

	user := newPostgresUser(t, store, func(u *identity.User) {
		u.Email = "persist@acme.example"
		u.FirstName = "Sara"
		u.Roles = []string{identity.RoleVerificationsAccountable}
	})

	t.Run("round trips through every lookup", func(t *testing.T) {
		byID, err := store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sara", byID.FirstName)
		assert.Equal(t, []string{identity.RoleVerificationsAccountable}, byID.Roles)

		byEmail, err := store.GetByEmail(ctx, "persist@acme.example")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		dup := &identity.User{
			ID:         uuid.New(),
			Email:      "persist@acme.example",
			Roles:      []string{},
			AccessList: []string{},
		}
		require.ErrorIs(t, store.Create(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("updates persist", func(t *testing.T) {
		user.PostalCode = "1234567890"
		require.NoError(t, store.Update(ctx, user))
		got, err := store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "1234567890", got.PostalCode)
	})

	t.Run("missing rows are not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.New())
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		require.ErrorIs(t, store.Delete(ctx, uuid.New()), sentinel.ErrNotFound)
	})
}

func TestPostgresStore_Accountables(t *testing.T) {
	ctx := context.Background()
	db := containers.NewPostgresDB(t)
	store := identity.NewPostgres(db)

	eligible := newPostgresUser(t, store, func(u *identity.User) {
		u.IsStaff = true
		u.Roles = []string{identity.RoleVerificationsAccountable}
	})
	newPostgresUser(t, store, func(u *identity.User) { u.IsStaff = true })
	newPostgresUser(t, store, func(u *identity.User) {
		u.IsStaff = true
		u.IsSuperuser = true
	})

	found, err := store.EligibleAccountables(ctx, nil)
	require.NoError(t, err)
	require.Len(t, found, 1, "only the explicit role qualifies, superuser shortcut does not apply")
	assert.Equal(t, eligible.ID, found[0].ID)

	excluded, err := store.EligibleAccountables(ctx, &eligible.ID)
	require.NoError(t, err)
	assert.Empty(t, excluded)
}

func TestPostgresStore_MarkIdentityVerified(t *testing.T) {
	ctx := context.Background()
	db := containers.NewPostgresDB(t)
	store := identity.NewPostgres(db)

	user := newPostgresUser(t, store, nil)
	staff := newPostgresUser(t, store, func(u *identity.User) { u.IsStaff = true })

	changed, err := store.MarkIdentityVerified(ctx, user.ID, staff.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.MarkIdentityVerified(ctx, user.ID, staff.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, changed, "the flag only flips once")

	got, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IdentityVerified)
	require.NotNil(t, got.IdentityVerifiedBy)
	assert.Equal(t, staff.ID, *got.IdentityVerifiedBy)
}
