package refresh

import "errors"

var (
	// ErrConfigurationUnavailable means the refresh settings could not be read.
	ErrConfigurationUnavailable = errors.New("refresh configuration unavailable")
	// ErrItemQuery means the library store failed to enumerate candidates.
	ErrItemQuery = errors.New("failed to query library items")
	// ErrUnknownKind is returned for a kind with no registered evaluator.
	ErrUnknownKind = errors.New("no evaluator for item kind")
)
