package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akagifreeez/apikeys/internal/store"
	"github.com/akagifreeez/apikeys/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	limit := int64(5)
	rec := storetest.Record("a", "default")
	rec.Limit = &limit
	require.NoError(t, s.Insert(ctx, rec))

	// Mutating the caller's record after insert does not reach the store.
	limit = 99

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.Limit)
	assert.Equal(t, int64(5), *got.Limit)

	*got.Limit = 1000
	got.Name = "changed"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), *again.Limit)
	assert.Equal(t, "default", again.Name)
}
