package library

import "errors"

var (
	// ErrNotFound indicates the requested item doesn't exist.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidItem indicates an item failed validation before a write.
	ErrInvalidItem = errors.New("invalid item")

	// ErrInvalidQuery indicates a query that cannot be rendered.
	ErrInvalidQuery = errors.New("invalid item query")

	// ErrUnknownImagePolicy indicates an unrecognised missing-image policy.
	ErrUnknownImagePolicy = errors.New("unknown image policy")
)
