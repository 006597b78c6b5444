package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/akagifreeez/apikeys/pkg/crypto"
)

const testSealingKey = "0123456789abcdef0123456789abcdef"

// setupTestDB opens a migrated database in a per-test temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if _, err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupTestRepo(t *testing.T) *KeyRepo {
	t.Helper()

	sealer, err := crypto.NewSealer(testSealingKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	return NewKeyRepo(setupTestDB(t), sealer)
}
