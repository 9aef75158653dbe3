// Package storage provides the keyed persistence media the token store writes to.
// A medium is a flat string key/value space scoped to one CLI context, the Go
// counterpart of a browser's origin-scoped local storage.
package storage

import "errors"

// ErrClosed is returned by media used after Close.
var ErrClosed = errors.New("storage closed")

// KeyValue is a scoped string key/value medium.
type KeyValue interface {
	// Get returns the value for key and whether it was present
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value
	Set(key, value string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(keys ...string) error
}

// Backend names used in configuration and metrics labels.
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendSession = "session"
)
