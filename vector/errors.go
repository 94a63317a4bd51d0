package vector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimension the index was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ErrorKind classifies a vector index failure.
type ErrorKind int

const (
	// KindPermanent failures (authentication, validation) are never retried.
	KindPermanent ErrorKind = iota
	// KindTransient failures (timeouts, dropped connections, throttling) are
	// retried with backoff.
	KindTransient
	// KindTooLarge means a record exceeded the backend's input size limit.
	KindTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTooLarge:
		return "too large"
	default:
		return "permanent"
	}
}

// Error is a classified failure reported by an Index.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

// NewError wraps err as a failure of op with the given kind.
func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("vector %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	tooLargeSignatures = []string{
		"too large",
		"too long",
		"context length",
		"maximum context",
		"token limit",
		"maximum input",
		"413",
	}
	permanentSignatures = []string{
		"401",
		"403",
		"unauthorized",
		"unauthenticated",
		"forbidden",
		"invalid api key",
		"permission denied",
		"validation",
		"invalid",
	}
	transientSignatures = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"econnreset",
		"econnrefused",
		"broken pipe",
		"unexpected eof",
		"temporarily unavailable",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"500",
		"502",
		"503",
		"504",
	}
)

// Classify reports the kind of err. A typed *Error anywhere in the chain wins.
// Otherwise network timeouts count as transient and the message is matched
// against known size, authorization and connectivity signatures, in that
// order. Anything unrecognized is permanent.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}

	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, tooLargeSignatures):
		return KindTooLarge
	case containsAny(msg, permanentSignatures):
		return KindPermanent
	case containsAny(msg, transientSignatures):
		return KindTransient
	}
	return KindPermanent
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
