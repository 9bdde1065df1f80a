package domain

import "errors"

var (
	// ErrNotFound marks a missing entity that the caller must reference,
	// such as an unknown reporter.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks input rejected before it reaches the store.
	ErrInvalidInput = errors.New("invalid input")
)
