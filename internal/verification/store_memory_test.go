package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userapi/pkg/sentinel"
)

func seedRequest(t *testing.T, store *InMemoryStore, subject SubjectRef, userID uuid.UUID) *Request {
	t.Helper()
	req := &Request{
		Subject: subject,
		UserID:  userID,
		Status:  StatusSent,
		Documents: []Document{
			{UserID: userID, FilePath: "users/docs/scan.png", Type: DocNationalIDCard},
		},
	}
	require.NoError(t, store.Create(context.Background(), req))
	return req
}

func TestInMemoryStore_DuplicateSubject(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	userID := uuid.New()

	first := seedRequest(t, store, UserRef(userID), userID)

	err := store.Create(ctx, &Request{Subject: UserRef(userID), UserID: userID, Status: StatusSent})
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// A rejected request no longer blocks the subject.
	ok, err := store.MarkInspected(ctx, first.ID, StatusRejected, "blurry", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Create(ctx, &Request{Subject: UserRef(userID), UserID: userID, Status: StatusSent}))

	// A different subject is never affected.
	require.NoError(t, store.Create(ctx, &Request{Subject: CompanyRef(7), UserID: userID, Status: StatusSent}))
}

func TestInMemoryStore_ConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	userID := uuid.New()
	staffID := uuid.New()
	req := seedRequest(t, store, UserRef(userID), userID)

	ok, err := store.SetAccountable(ctx, req.ID, staffID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkInspected(ctx, req.ID, StatusVerified, "", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	// Terminal requests refuse further writes.
	ok, err = store.SetAccountable(ctx, req.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.MarkInspected(ctx, req.ID, StatusRejected, "late", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, got.Status)
	assert.Equal(t, staffID, *got.AccountableID)

	ok, err = store.SetAccountable(ctx, 9999, staffID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStore_ListUnassigned(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	staffID := uuid.New()

	oldest := seedRequest(t, store, UserRef(uuid.New()), uuid.New())
	assigned := seedRequest(t, store, UserRef(uuid.New()), uuid.New())
	newest := seedRequest(t, store, UserRef(uuid.New()), uuid.New())

	ok, err := store.SetAccountable(ctx, assigned.ID, staffID)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := store.ListUnassigned(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, oldest.ID, pending[0].ID)
	assert.Equal(t, newest.ID, pending[1].ID)
}

func TestInMemoryStore_SentAssignedCounts(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	busy := uuid.New()
	done := uuid.New()

	for i := 0; i < 2; i++ {
		req := seedRequest(t, store, UserRef(uuid.New()), uuid.New())
		ok, err := store.SetAccountable(ctx, req.ID, busy)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Inspected requests drop out of the load counts.
	finished := seedRequest(t, store, UserRef(uuid.New()), uuid.New())
	ok, err := store.SetAccountable(ctx, finished.ID, done)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkInspected(ctx, finished.ID, StatusVerified, "", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	counts, err := store.SentAssignedCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[busy])
	assert.Zero(t, counts[done])
}

func TestInMemoryStore_FilterAndDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	userID := uuid.New()
	staffID := uuid.New()

	mine := seedRequest(t, store, UserRef(userID), userID)
	seedRequest(t, store, CompanyRef(3), uuid.New())

	ok, err := store.SetAccountable(ctx, mine.ID, staffID)
	require.NoError(t, err)
	require.True(t, ok)

	byUser, err := store.List(ctx, Filter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, mine.ID, byUser[0].ID)

	byKind, err := store.List(ctx, Filter{SubjectKind: SubjectCompany})
	require.NoError(t, err)
	require.Len(t, byKind, 1)

	byAccountable, err := store.List(ctx, Filter{AccountableID: &staffID})
	require.NoError(t, err)
	require.Len(t, byAccountable, 1)

	doc, err := store.GetDocument(ctx, mine.Documents[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "scan.png", doc.Filename())

	_, err = store.GetDocument(ctx, 404)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
