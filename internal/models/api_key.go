package models

import (
	"time"
)

// KeyRecord is the stored form of an API key, including its secret.
// It never leaves the service layer; callers receive a KeyView.
type KeyRecord struct {
	ID        string
	Name      string
	Secret    string
	CreatedAt time.Time
	Usage     int64
	Limit     *int64 // nil means unlimited
}

// KeyView is the projection of a KeyRecord returned to callers. Key holds
// either the masked placeholder or the verbatim secret.
type KeyView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	Usage     int64     `json:"usage"`
	Limit     *int64    `json:"limit,omitempty"`
}

// KeyUpdate describes an in-place change to a record. Name is replaced when
// non-nil. Limit is replaced when SetLimit is true; a nil Limit then clears
// the quota.
type KeyUpdate struct {
	Name     *string
	Limit    *int64
	SetLimit bool
}

// QuotaStatus reports a key's usage against its monthly limit.
type QuotaStatus struct {
	ID        string `json:"id"`
	Usage     int64  `json:"usage"`
	Limit     *int64 `json:"limit,omitempty"`
	Remaining *int64 `json:"remaining,omitempty"`
	Exceeded  bool   `json:"exceeded"`
}

// Clone returns a deep copy of r.
func (r KeyRecord) Clone() KeyRecord {
	if r.Limit != nil {
		limit := *r.Limit
		r.Limit = &limit
	}
	return r
}
