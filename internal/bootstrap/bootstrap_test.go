package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akagifreeez/apikeys/internal/config"
	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store/memory"
	"github.com/akagifreeez/apikeys/internal/store/sqlite"
)

func TestOpenStore_Memory(t *testing.T) {
	st, closeFn, err := OpenStore(context.Background(), &config.Config{StoreDriver: config.DriverMemory})
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &memory.Store{}, st)
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:   config.DriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "keys.db"),
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}
	ctx := context.Background()

	st, closeFn, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.KeyRepo{}, st)

	require.NoError(t, st.Insert(ctx, models.KeyRecord{ID: "a", Name: "a", Secret: "tvly-x"}))
	closeFn()

	// Reopening sees the persisted key.
	st, closeFn, err = OpenStore(ctx, cfg)
	require.NoError(t, err)
	defer closeFn()

	rec, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "tvly-x", rec.Secret)
}

func TestOpenStore_SQLiteBadKey(t *testing.T) {
	_, _, err := OpenStore(context.Background(), &config.Config{
		StoreDriver:   config.DriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "keys.db"),
		EncryptionKey: "short",
	})
	assert.Error(t, err)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, _, err := OpenStore(context.Background(), &config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}

func TestNewQuotaAlerts(t *testing.T) {
	assert.NotNil(t, NewQuotaAlerts(&config.Config{}))
	assert.NotNil(t, NewQuotaAlerts(&config.Config{DiscordWebhookURL: "https://discord.com/api/webhooks/1/t"}))
	assert.NotNil(t, NewQuotaAlerts(&config.Config{DiscordWebhookURL: "::"}))
}
