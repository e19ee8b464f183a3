package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("storage.not_found")

	// ErrUnsupported is returned by stores that cannot persist anything.
	ErrUnsupported = errors.New("storage.unsupported")
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) (string, error)

	// Set stores value under key.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// IsSupported reports whether the backend can actually persist values.
	IsSupported() bool
}
