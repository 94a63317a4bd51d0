// Package retry runs fallible operations with exponential or scheduled backoff.
//
// Callers decide which errors are worth another attempt; everything else is
// returned unchanged on first sight. When attempts run out the last error is
// wrapped with the attempt count and ErrExhausted.
package retry
