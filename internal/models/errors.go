package models

import (
	"errors"
)

var (
	// ErrInvalidArgument marks malformed or rejected input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks an operation on an unknown key id.
	ErrNotFound = errors.New("api key not found")

	// ErrDuplicateID marks an insert whose id is already present. Generated
	// ids make this unreachable unless the uniqueness guarantee is broken.
	ErrDuplicateID = errors.New("duplicate api key id")
)

// Error kinds exposed to callers.
const (
	KindInvalidArgument = "invalid_argument"
	KindNotFound        = "not_found"
	KindDuplicateID     = "duplicate_id"
	KindInternal        = "internal"
)

// ErrorKind classifies err into one of the stable error kinds.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateID):
		return KindDuplicateID
	default:
		return KindInternal
	}
}
