package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/akagifreeez/apikeys/internal/models"
)

// KeyStore owns the mapping from key id to record. Implementations make every
// operation atomic with respect to the others: readers observe either the
// state before or after a mutation, never an intermediate one.
type KeyStore interface {
	// Insert adds rec. It returns models.ErrDuplicateID if rec.ID is present.
	Insert(ctx context.Context, rec models.KeyRecord) error

	// Get returns the record for id or models.ErrNotFound.
	Get(ctx context.Context, id string) (models.KeyRecord, error)

	// List returns all records in insertion order.
	List(ctx context.Context) ([]models.KeyRecord, error)

	// Update replaces name and/or limit in place and returns the result.
	// ID, secret, creation time and usage are never changed.
	Update(ctx context.Context, id string, upd models.KeyUpdate) (models.KeyRecord, error)

	// Delete removes the record permanently or returns models.ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// UsageRecorder is the write path for the external usage collaborator.
// The lifecycle service never calls it.
type UsageRecorder interface {
	SetUsage(ctx context.Context, id string, usage int64) error
}

// Store is implemented by every backend.
type Store interface {
	KeyStore
	UsageRecorder
}

// ValidateUpdate checks upd before it is applied and returns a copy with the
// name trimmed.
func ValidateUpdate(upd models.KeyUpdate) (models.KeyUpdate, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return upd, fmt.Errorf("%w: name must not be empty", models.ErrInvalidArgument)
		}
		upd.Name = &name
	}
	if upd.SetLimit && upd.Limit != nil {
		if err := ValidateLimit(*upd.Limit); err != nil {
			return upd, err
		}
		limit := *upd.Limit
		upd.Limit = &limit
	}
	return upd, nil
}

// ValidateLimit rejects non-positive quotas.
func ValidateLimit(limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be a positive integer, got %d", models.ErrInvalidArgument, limit)
	}
	return nil
}

// ValidateUsage rejects negative usage counters.
func ValidateUsage(usage int64) error {
	if usage < 0 {
		return fmt.Errorf("%w: usage must not be negative, got %d", models.ErrInvalidArgument, usage)
	}
	return nil
}

// NotFound wraps models.ErrNotFound with the id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %q", models.ErrNotFound, id)
}

// DuplicateID wraps models.ErrDuplicateID with the id.
func DuplicateID(id string) error {
	return fmt.Errorf("%w: %q", models.ErrDuplicateID, id)
}
