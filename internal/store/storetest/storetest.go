// Package storetest holds the behavioural contract every store.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store"
	"github.com/akagifreeez/apikeys/pkg/keygen"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Record builds a record with a generated secret.
func Record(id, name string) models.KeyRecord {
	return models.KeyRecord{
		ID:        id,
		Name:      name,
		Secret:    keygen.Generate(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func ptr[T any](v T) *T { return &v }

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := Record("a", "default")
		rec.Limit = ptr(int64(100))

		require.NoError(t, s.Insert(ctx, rec))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Name, got.Name)
		assert.Equal(t, rec.Secret, got.Secret)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", rec.CreatedAt, got.CreatedAt)
		assert.Equal(t, int64(0), got.Usage)
		require.NotNil(t, got.Limit)
		assert.Equal(t, int64(100), *got.Limit)
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := Record("a", "first")

		require.NoError(t, s.Insert(ctx, first))
		err := s.Insert(ctx, Record("a", "second"))
		assert.ErrorIs(t, err, models.ErrDuplicateID)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
		assert.Equal(t, first.Secret, got.Secret)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("ListInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		empty, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		ids := []string{"zeta", "alpha", "mid", "beta"}
		for _, id := range ids {
			require.NoError(t, s.Insert(ctx, Record(id, id)))
		}
		require.NoError(t, s.Delete(ctx, "mid"))
		require.NoError(t, s.Insert(ctx, Record("omega", "omega")))

		list, err := s.List(ctx)
		require.NoError(t, err)
		got := make([]string, 0, len(list))
		for _, rec := range list {
			got = append(got, rec.ID)
		}
		assert.Equal(t, []string{"zeta", "alpha", "beta", "omega"}, got)
	})

	t.Run("UpdateFieldIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := Record("a", "default")
		require.NoError(t, s.Insert(ctx, rec))
		require.NoError(t, s.SetUsage(ctx, "a", 42))

		updated, err := s.Update(ctx, "a", models.KeyUpdate{
			Name:     ptr("prod"),
			Limit:    ptr(int64(500)),
			SetLimit: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "prod", updated.Name)
		require.NotNil(t, updated.Limit)
		assert.Equal(t, int64(500), *updated.Limit)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Secret, got.Secret)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, int64(42), got.Usage)
		assert.Equal(t, "prod", got.Name)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := Record("a", "default")
		rec.Limit = ptr(int64(10))
		require.NoError(t, s.Insert(ctx, rec))

		updated, err := s.Update(ctx, "a", models.KeyUpdate{Name: ptr("renamed")})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)
		require.NotNil(t, updated.Limit, "limit must be kept when SetLimit is false")
		assert.Equal(t, int64(10), *updated.Limit)

		updated, err = s.Update(ctx, "a", models.KeyUpdate{SetLimit: true})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)
		assert.Nil(t, updated.Limit, "nil limit with SetLimit clears the quota")
	})

	t.Run("UpdateValidation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, Record("a", "default")))

		_, err := s.Update(ctx, "a", models.KeyUpdate{Name: ptr("   ")})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)

		_, err = s.Update(ctx, "a", models.KeyUpdate{Limit: ptr(int64(0)), SetLimit: true})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)

		_, err = s.Update(ctx, "a", models.KeyUpdate{Limit: ptr(int64(-5)), SetLimit: true})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "default", got.Name)
		assert.Nil(t, got.Limit)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Update(context.Background(), "missing", models.KeyUpdate{Name: ptr("x")})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("DeleteTwice", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, Record("a", "default")))

		require.NoError(t, s.Delete(ctx, "a"))
		assert.ErrorIs(t, s.Delete(ctx, "a"), models.ErrNotFound)

		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("SetUsage", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, Record("a", "default")))

		require.NoError(t, s.SetUsage(ctx, "a", 24))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(24), got.Usage)

		assert.ErrorIs(t, s.SetUsage(ctx, "a", -1), models.ErrInvalidArgument)
		assert.ErrorIs(t, s.SetUsage(ctx, "missing", 1), models.ErrNotFound)
	})

	t.Run("ConcurrentMutations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("k%02d", i)
				assert.NoError(t, s.Insert(ctx, Record(id, id)))
				_, err := s.Update(ctx, id, models.KeyUpdate{Name: ptr("renamed-" + id)})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, n)

		// Racing deletes on one id: exactly one wins.
		var mu sync.Mutex
		var okCount, notFound int
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Delete(ctx, "k00")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					okCount++
				case assert.ErrorIs(t, err, models.ErrNotFound):
					notFound++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, okCount)
		assert.Equal(t, 7, notFound)
	})
}
