package services

import (
	"context"
	"fmt"

	"github.com/akagifreeez/apikeys/internal/models"
)

// QuotaChecker is the capability an admission-control collaborator queries to
// decide whether a key is over its monthly limit. This service does not
// enforce quotas itself.
type QuotaChecker interface {
	QuotaStatus(ctx context.Context, id string) (models.QuotaStatus, error)
}

var _ QuotaChecker = (*KeyService)(nil)

// QuotaStatus reports usage against the limit for id.
func (s *KeyService) QuotaStatus(ctx context.Context, id string) (models.QuotaStatus, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("quota status: %w", err)
	}
	return quotaOf(rec), nil
}

// Exists reports whether id names a live key.
func (s *KeyService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if models.ErrorKind(err) == models.KindNotFound {
		return false, nil
	}
	return false, err
}

func quotaOf(rec models.KeyRecord) models.QuotaStatus {
	status := models.QuotaStatus{
		ID:    rec.ID,
		Usage: rec.Usage,
		Limit: copyLimit(rec.Limit),
	}
	if rec.Limit != nil {
		remaining := *rec.Limit - rec.Usage
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = &remaining
		status.Exceeded = rec.Usage >= *rec.Limit
	}
	return status
}
