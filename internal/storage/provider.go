// Package storage defines the file-system abstraction used for uploaded
// files and the vector index directories.
package storage

import "io"

// Provider is the interface for file operations relative to a root directory.
type Provider interface {
	// List returns every regular file under dir, relative to the root.
	List(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Open returns a reader for the file at path.
	Open(path string) (io.ReadCloser, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Save streams r into a new file named after name with a unique prefix
	// and returns the relative path it was stored under.
	Save(name string, r io.Reader) (string, error)
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveAll removes dir and everything below it.
	RemoveAll(dir string) error
	// Abs resolves path to an absolute file-system path inside the root.
	Abs(path string) (string, error)
}
