// Package masking decides which projection of a key record a caller may see.
//
// Mask is the default for every read path. Reveal returns the secret verbatim
// and is reserved for key creation and the single-key reveal operation.
package masking

import (
	"strings"

	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/pkg/keygen"
)

// MaskChar replaces every body character of a masked key.
const MaskChar = '*'

var placeholder = keygen.Prefix + strings.Repeat(string(MaskChar), keygen.BodyLength)

// Placeholder returns the masked form shared by every key.
func Placeholder() string {
	return placeholder
}

// Mask returns the public fields of rec with the secret replaced by Placeholder.
func Mask(rec models.KeyRecord) models.KeyView {
	view := project(rec)
	view.Key = placeholder
	return view
}

// Reveal returns the public fields of rec together with its verbatim secret.
func Reveal(rec models.KeyRecord) models.KeyView {
	view := project(rec)
	view.Key = rec.Secret
	return view
}

// MaskAll masks every record, preserving order. The result is never nil.
func MaskAll(recs []models.KeyRecord) []models.KeyView {
	views := make([]models.KeyView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, Mask(rec))
	}
	return views
}

func project(rec models.KeyRecord) models.KeyView {
	rec = rec.Clone()
	return models.KeyView{
		ID:        rec.ID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt,
		Usage:     rec.Usage,
		Limit:     rec.Limit,
	}
}
