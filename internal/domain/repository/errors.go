package repository

import (
	"context"
	"errors"
)

// Failure classes shared by ingestion and the query API. Wrap them with
// fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	// ErrStoreUnavailable means the store could not be reached or rejected the operation.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSourceUnavailable means the history API could not be reached or answered non-2xx.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedPayload means the history API answered with something we cannot use.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrCursorParse means the persisted cursor could not be parsed as epoch seconds.
	ErrCursorParse = errors.New("cursor parse failure")
	// ErrNotFound means nothing is persisted yet.
	ErrNotFound = errors.New("not found")
)

// ErrorKind maps err to a stable label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrCursorParse):
		return "cursor_parse"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
