package storage

import "errors"

// Domain errors for storage operations.
var (
	// ErrInvalidKey is returned when a key is invalid (e.g., empty).
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrEntryTooLarge is returned when a single entry exceeds the
	// tier's maximum size on its own.
	ErrEntryTooLarge = errors.New("storage: entry exceeds tier capacity")

	// ErrNotAvailable is returned when the provider has not been
	// initialized or has been destroyed.
	ErrNotAvailable = errors.New("storage: provider not available")

	// ErrSerializationFailed is returned when an entry cannot be
	// encoded for the backing medium.
	ErrSerializationFailed = errors.New("storage: serialization failed")

	// ErrConnectionFailed is returned when the backing medium cannot
	// be opened.
	ErrConnectionFailed = errors.New("storage: connection failed")
)
