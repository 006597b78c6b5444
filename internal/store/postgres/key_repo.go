package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store"
	"github.com/akagifreeez/apikeys/pkg/crypto"
	"github.com/akagifreeez/apikeys/pkg/database"
)

var _ store.Store = (*KeyRepo)(nil)

const keyColumns = `id, name, encrypted_secret, created_at, usage, usage_limit`

// KeyRepo is the PostgreSQL implementation of store.Store. Each operation is
// a single statement, so row-level locking gives per-id serialization.
type KeyRepo struct {
	db     *database.DB
	sealer *crypto.Sealer
}

// NewKeyRepo creates a KeyRepo over a migrated database.
func NewKeyRepo(db *database.DB, sealer *crypto.Sealer) *KeyRepo {
	return &KeyRepo{db: db, sealer: sealer}
}

func (r *KeyRepo) Insert(ctx context.Context, rec models.KeyRecord) error {
	sealed, err := r.sealer.Seal(rec.Secret)
	if err != nil {
		return fmt.Errorf("seal secret for %q: %w", rec.ID, err)
	}

	query := `INSERT INTO api_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, query, rec.ID, rec.Name, sealed, rec.CreatedAt, rec.Usage, rec.Limit)
	if err != nil {
		return fmt.Errorf("insert api key %q: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.DuplicateID(rec.ID)
	}
	return nil
}

func (r *KeyRepo) Get(ctx context.Context, id string) (models.KeyRecord, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE id = $1`
	rec, err := r.scan(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.KeyRecord{}, store.NotFound(id)
	}
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("get api key %q: %w", id, err)
	}
	return rec, nil
}

func (r *KeyRepo) List(ctx context.Context) ([]models.KeyRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY seq ASC`)
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

	query := `UPDATE api_keys
		SET name = COALESCE($2::text, name),
		    usage_limit = CASE WHEN $3::boolean THEN $4::bigint ELSE usage_limit END
		WHERE id = $1
		RETURNING ` + keyColumns
	rec, err := r.scan(r.db.Pool.QueryRow(ctx, query, id, upd.Name, upd.SetLimit, upd.Limit))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.KeyRecord{}, store.NotFound(id)
	}
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("update api key %q: %w", id, err)
	}
	return rec, nil
}

func (r *KeyRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound(id)
	}
	return nil
}

func (r *KeyRepo) SetUsage(ctx context.Context, id string, usage int64) error {
	if err := store.ValidateUsage(usage); err != nil {
		return err
	}

	tag, err := r.db.Pool.Exec(ctx, `UPDATE api_keys SET usage = $2 WHERE id = $1`, id, usage)
	if err != nil {
		return fmt.Errorf("set usage for api key %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound(id)
	}
	return nil
}

func (r *KeyRepo) scan(row pgx.Row) (models.KeyRecord, error) {
	var (
		rec    models.KeyRecord
		sealed string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &sealed, &rec.CreatedAt, &rec.Usage, &rec.Limit); err != nil {
		return models.KeyRecord{}, err
	}

	secret, err := r.sealer.Open(sealed)
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("open secret for %q: %w", rec.ID, err)
	}
	rec.Secret = secret
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
