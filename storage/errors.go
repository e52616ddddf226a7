package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when an artifact is not found.
	ErrNotFound = errors.New("artifact not found")

	// ErrNoContent is returned for artifacts stored without content.
	ErrNoContent = errors.New("artifact has no content")

	// ErrInvalidUUID is returned for UUIDs that cannot be used as keys.
	ErrInvalidUUID = errors.New("invalid artifact uuid")
)
