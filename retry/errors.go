package retry

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrExhausted wraps the last error once every attempt has failed.
	ErrExhausted = errors.New("retries exhausted")
)
