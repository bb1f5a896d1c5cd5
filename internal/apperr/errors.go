// Package apperr holds the sentinel errors shared across layers. Handlers map
// them to HTTP status codes with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// ErrNoContent means a resource has neither a stored file, notes, nor a
	// fetchable URL to ingest.
	ErrNoContent = errors.New("resource has no content to process")
	// ErrEmptyDocument means extraction produced only whitespace.
	ErrEmptyDocument = errors.New("document contains no text")

	ErrExtraction = errors.New("failed to extract exam information")
	ErrAnswer     = errors.New("could not obtain answer")
)
