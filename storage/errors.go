package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when an artifact is not found.
	ErrNotFound = errors.New("artifact not found")
)
