package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akagifreeez/apikeys/internal/masking"
	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store/memory"
	"github.com/akagifreeez/apikeys/pkg/keygen"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestService(t *testing.T, opts ...Option) (*KeyService, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewKeyService(st, opts...), st
}

func TestKeyService_Scenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "default", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Key, keygen.Prefix))
	assert.GreaterOrEqual(t, len(created.Key)-len(keygen.Prefix), 32)
	assert.Equal(t, int64(0), created.Usage)
	assert.Nil(t, created.Limit)

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, masking.Placeholder(), list[0].Key)
	assert.Equal(t, keygen.Prefix, list[0].Key[:len(keygen.Prefix)])
	assert.Equal(t, strings.Repeat("*", keygen.BodyLength), list[0].Key[len(keygen.Prefix):])

	revealed, err := svc.RevealKey(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Key, revealed.Key)

	updated, err := svc.UpdateKey(ctx, created.ID, "prod", int64Ptr(500))
	require.NoError(t, err)
	assert.Equal(t, "prod", updated.Name)
	require.NotNil(t, updated.Limit)
	assert.Equal(t, int64(500), *updated.Limit)
	assert.Equal(t, masking.Placeholder(), updated.Key)

	require.NoError(t, svc.DeleteKey(ctx, created.ID))

	_, err = svc.RevealKey(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestKeyService_CreateValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		keyName string
		limit   *int64
	}{
		{"empty name", "", nil},
		{"whitespace name", "   \t", nil},
		{"zero limit", "k", int64Ptr(0)},
		{"negative limit", "k", int64Ptr(-5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateKey(ctx, tt.keyName, tt.limit)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}

	recs, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestKeyService_CreateTrimsNameAndKeepsLimit(t *testing.T) {
	svc, _ := newTestService(t)

	view, err := svc.CreateKey(context.Background(), "  staging  ", int64Ptr(1000))
	require.NoError(t, err)
	assert.Equal(t, "staging", view.Name)
	require.NotNil(t, view.Limit)
	assert.Equal(t, int64(1000), *view.Limit)
}

func TestKeyService_CreateUsesInjectedCollaborators(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	secret := keygen.Prefix + strings.Repeat("a", keygen.BodyLength)
	svc, _ := newTestService(t,
		WithClock(func() time.Time { return fixed }),
		WithIDFunc(func() string { return "fixed-id" }),
		WithGenerator(staticGenerator(secret)),
	)

	view, err := svc.CreateKey(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", view.ID)
	assert.Equal(t, secret, view.Key)
	assert.True(t, fixed.Equal(view.CreatedAt))
}

func TestKeyService_DuplicateIDSurfaces(t *testing.T) {
	svc, _ := newTestService(t, WithIDFunc(func() string { return "same" }))
	ctx := context.Background()

	_, err := svc.CreateKey(ctx, "first", nil)
	require.NoError(t, err)

	_, err = svc.CreateKey(ctx, "second", nil)
	assert.ErrorIs(t, err, models.ErrDuplicateID)
}

func TestKeyService_Uniqueness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[string]struct{}, n)
		keys = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.CreateKey(ctx, "k", nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[view.ID] = struct{}{}
			keys[view.Key] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, n)
	assert.Len(t, keys, n)

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestKeyService_Secrecy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	secrets := make(map[string]struct{})
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		view, err := svc.CreateKey(ctx, name, nil)
		require.NoError(t, err)
		secrets[view.Key] = struct{}{}
		ids = append(ids, view.ID)
	}

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	for _, view := range list {
		assert.NotContains(t, secrets, view.Key)
	}

	for _, id := range ids {
		view, err := svc.UpdateKey(ctx, id, "renamed", nil)
		require.NoError(t, err)
		assert.NotContains(t, secrets, view.Key)
	}
}

func TestKeyService_RevealStableAcrossLifetime(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		view, err := svc.RevealKey(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Key, view.Key)
	}

	_, err = svc.UpdateKey(ctx, created.ID, "other", int64Ptr(10))
	require.NoError(t, err)
	require.NoError(t, st.SetUsage(ctx, created.ID, 7))

	view, err := svc.RevealKey(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Key, view.Key)
	assert.Equal(t, int64(7), view.Usage)
}

func TestKeyService_MaskShapeMatchesReveal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)
	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)

	masked := list[0].Key
	assert.Len(t, masked, len(created.Key))
	assert.Equal(t, created.Key[:len(keygen.Prefix)], masked[:len(keygen.Prefix)])
	assert.NotEqual(t, created.Key, masked)
}

func TestKeyService_UpdateFieldIsolation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", int64Ptr(5))
	require.NoError(t, err)
	require.NoError(t, st.SetUsage(ctx, created.ID, 3))

	before, err := st.Get(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.UpdateKey(ctx, created.ID, "new", int64Ptr(50))
	require.NoError(t, err)

	after, err := st.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Secret, after.Secret)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.Equal(t, before.Usage, after.Usage)
	assert.Equal(t, "new", after.Name)
	require.NotNil(t, after.Limit)
	assert.Equal(t, int64(50), *after.Limit)
}

func TestKeyService_UpdateClearsLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", int64Ptr(5))
	require.NoError(t, err)

	view, err := svc.UpdateKey(ctx, created.ID, "k", nil)
	require.NoError(t, err)
	assert.Nil(t, view.Limit)
}

func TestKeyService_UpdateErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)

	_, err = svc.UpdateKey(ctx, created.ID, "  ", nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = svc.UpdateKey(ctx, created.ID, "k", int64Ptr(0))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = svc.UpdateKey(ctx, "missing", "k", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	view, err := svc.RevealKey(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "k", view.Name)
}

func TestKeyService_DeleteTwice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteKey(ctx, created.ID))
	assert.ErrorIs(t, svc.DeleteKey(ctx, created.ID), models.ErrNotFound)

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestKeyService_ListOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var want []string
	for _, name := range []string{"one", "two", "three"} {
		view, err := svc.CreateKey(ctx, name, nil)
		require.NoError(t, err)
		want = append(want, view.ID)
	}

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	var got []string
	for _, view := range list {
		got = append(got, view.ID)
	}
	assert.Equal(t, want, got)
}

func TestKeyService_SeedDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	seeded, err := svc.SeedDefault(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = svc.SeedDefault(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DefaultKeyName, list[0].Name)
}

func TestKeyService_PublishesMaskedEvents(t *testing.T) {
	hub := NewEventHub(8)
	events, cancel := hub.Subscribe()
	defer cancel()

	svc, _ := newTestService(t, WithEvents(hub))
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)
	_, err = svc.UpdateKey(ctx, created.ID, "k2", nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteKey(ctx, created.ID))

	var got []Event
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	assert.Equal(t, EventCreated, got[0].Type)
	require.NotNil(t, got[0].Key)
	assert.Equal(t, masking.Placeholder(), got[0].Key.Key)

	assert.Equal(t, EventUpdated, got[1].Type)
	require.NotNil(t, got[1].Key)
	assert.Equal(t, "k2", got[1].Key.Name)
	assert.Equal(t, masking.Placeholder(), got[1].Key.Key)

	assert.Equal(t, EventDeleted, got[2].Type)
	assert.Equal(t, created.ID, got[2].ID)
	assert.Nil(t, got[2].Key)
}

func TestKeyService_QuotaStatus(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	unlimited, err := svc.CreateKey(ctx, "free", nil)
	require.NoError(t, err)
	limited, err := svc.CreateKey(ctx, "paid", int64Ptr(10))
	require.NoError(t, err)

	status, err := svc.QuotaStatus(ctx, unlimited.ID)
	require.NoError(t, err)
	assert.Nil(t, status.Limit)
	assert.Nil(t, status.Remaining)
	assert.False(t, status.Exceeded)

	require.NoError(t, st.SetUsage(ctx, limited.ID, 4))
	status, err = svc.QuotaStatus(ctx, limited.ID)
	require.NoError(t, err)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, int64(6), *status.Remaining)
	assert.False(t, status.Exceeded)

	require.NoError(t, st.SetUsage(ctx, limited.ID, 12))
	status, err = svc.QuotaStatus(ctx, limited.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *status.Remaining)
	assert.True(t, status.Exceeded)

	_, err = svc.QuotaStatus(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestKeyService_Exists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyService_CreatedAtStableAcrossReads(t *testing.T) {
	clock := time.Date(2026, 10, 18, 12, 0, 0, 123456789, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 0, 123456000, time.UTC), created.CreatedAt)

	revealed, err := svc.RevealKey(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, revealed.CreatedAt)

	list, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, list[0].CreatedAt)
}

type recordingForgetter struct {
	ids []string
	err error
}

func (f *recordingForgetter) Forget(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func TestKeyService_DeleteForgetsUsage(t *testing.T) {
	forgetter := &recordingForgetter{}
	svc, _ := newTestService(t, WithUsageForgetter(forgetter))
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteKey(ctx, created.ID))
	assert.Equal(t, []string{created.ID}, forgetter.ids)

	// A failed delete does not touch counters.
	assert.ErrorIs(t, svc.DeleteKey(ctx, created.ID), models.ErrNotFound)
	assert.Len(t, forgetter.ids, 1)
}

func TestKeyService_DeleteSucceedsWhenForgetFails(t *testing.T) {
	forgetter := &recordingForgetter{err: errors.New("redis down")}
	svc, _ := newTestService(t, WithUsageForgetter(forgetter))
	ctx := context.Background()

	created, err := svc.CreateKey(ctx, "k", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteKey(ctx, created.ID))
	_, err = svc.RevealKey(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type staticGenerator string

func (g staticGenerator) Generate() string { return string(g) }
