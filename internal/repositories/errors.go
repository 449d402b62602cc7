package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrUnavailable marks failures of the underlying database rather than of the request.
	ErrUnavailable = errors.New("account store unavailable")
	// ErrInvalidSet indicates a relationship set name outside the known sets.
	ErrInvalidSet = errors.New("unknown relationship set")
)
