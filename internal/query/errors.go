package query

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any network call when no credential
// is configured.
var ErrMissingAPIKey = errors.New("no API key configured (set GEMINI_API_KEY or [api] key)")

// ErrRetriesExhausted is returned when every attempt failed transiently.
var ErrRetriesExhausted = errors.New("temporary service errors, retries exhausted")

// FatalError is a failure that retrying cannot fix: a non-retryable HTTP
// status or a response without usable text.
type FatalError struct {
	Status int // 0 when the HTTP exchange itself succeeded
	Reason string
}

func (e *FatalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("query failed: HTTP %d: %s", e.Status, e.Reason)
	}
	return "query failed: " + e.Reason
}

// transientError marks a retryable failure inside the ladder.
type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("HTTP %d", e.status)
	}
	return e.err.Error()
}

func (e *transientError) Unwrap() error { return e.err }
