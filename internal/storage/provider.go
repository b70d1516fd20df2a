// Package storage implements the flat-file persistence backend: credentials
// in api_keys.json and the refresh state as three JSON documents.
package storage

// Provider is the interface for data-directory file operations.
type Provider interface {
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Root returns the absolute data directory.
	Root() string
}

var _ Provider = (*FS)(nil)
