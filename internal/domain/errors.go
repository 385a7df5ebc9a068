package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrMalformedRecord marks an upstream record the transform stage cannot map.
	// The record is skipped and the batch continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnresolvedReference marks a relation that could not be resolved.
	// The reference is dropped and the record is kept.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrInvalidRecord marks an entity that failed validation before upsert.
	// The record is skipped and the batch continues.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrFetch marks an upstream failure that ends the current run.
	ErrFetch = errors.New("fetch failed")

	ErrJobRunning = errors.New("job already running")
	ErrUnknownJob = errors.New("unknown job")
)
