package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store"
	"github.com/akagifreeez/apikeys/pkg/crypto"
)

var _ store.Store = (*KeyRepo)(nil)

const keyColumns = `id, name, encrypted_secret, created_at, usage, usage_limit`

// KeyRepo is the SQLite implementation of store.Store. Secrets are sealed
// with AES-256-GCM before write and opened after read.
type KeyRepo struct {
	db     *DB
	sealer *crypto.Sealer
}

// NewKeyRepo creates a KeyRepo over an already migrated database.
func NewKeyRepo(db *DB, sealer *crypto.Sealer) *KeyRepo {
	return &KeyRepo{db: db, sealer: sealer}
}

func (r *KeyRepo) Insert(ctx context.Context, rec models.KeyRecord) error {
	sealed, err := r.sealer.Seal(rec.Secret)
	if err != nil {
		return fmt.Errorf("seal secret for %q: %w", rec.ID, err)
	}

	const query = `INSERT INTO api_keys (` + keyColumns + `) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`
	res, err := r.db.Writer.ExecContext(ctx, query,
		rec.ID, rec.Name, sealed, formatTime(rec.CreatedAt), rec.Usage, rec.Limit)
	if err != nil {
		return fmt.Errorf("insert api key %q: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert api key %q: %w", rec.ID, err)
	}
	if n == 0 {
		return store.DuplicateID(rec.ID)
	}
	return nil
}

func (r *KeyRepo) Get(ctx context.Context, id string) (models.KeyRecord, error) {
	const query = `SELECT ` + keyColumns + ` FROM api_keys WHERE id = ?`
	rec, err := r.scan(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.KeyRecord{}, store.NotFound(id)
	}
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("get api key %q: %w", id, err)
	}
	return rec, nil
}

func (r *KeyRepo) List(ctx context.Context) ([]models.KeyRecord, error) {
	const query = `SELECT ` + keyColumns + ` FROM api_keys ORDER BY seq`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	recs := make([]models.KeyRecord, 0)
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return recs, nil
}

func (r *KeyRepo) Update(ctx context.Context, id string, upd models.KeyUpdate) (models.KeyRecord, error) {
	upd, err := store.ValidateUpdate(upd)
	if err != nil {
		return models.KeyRecord{}, err
	}

	const query = `UPDATE api_keys
		SET name = COALESCE(?, name),
		    usage_limit = CASE WHEN ? THEN ? ELSE usage_limit END
		WHERE id = ?
		RETURNING ` + keyColumns
	rec, err := r.scan(r.db.Writer.QueryRowContext(ctx, query, upd.Name, upd.SetLimit, upd.Limit, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.KeyRecord{}, store.NotFound(id)
	}
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("update api key %q: %w", id, err)
	}
	return rec, nil
}

func (r *KeyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.Writer.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete api key %q: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (r *KeyRepo) SetUsage(ctx context.Context, id string, usage int64) error {
	if err := store.ValidateUsage(usage); err != nil {
		return err
	}

	res, err := r.db.Writer.ExecContext(ctx, `UPDATE api_keys SET usage = ? WHERE id = ?`, usage, id)
	if err != nil {
		return fmt.Errorf("set usage for api key %q: %w", id, err)
	}
	return expectOneRow(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *KeyRepo) scan(row rowScanner) (models.KeyRecord, error) {
	var (
		rec       models.KeyRecord
		sealed    string
		createdAt string
		limit     sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &sealed, &createdAt, &rec.Usage, &limit); err != nil {
		return models.KeyRecord{}, err
	}

	secret, err := r.sealer.Open(sealed)
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("open secret for %q: %w", rec.ID, err)
	}
	rec.Secret = secret

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("parse created_at for %q: %w", rec.ID, err)
	}

	if limit.Valid {
		v := limit.Int64
		rec.Limit = &v
	}
	return rec, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", id, err)
	}
	if n == 0 {
		return store.NotFound(id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
