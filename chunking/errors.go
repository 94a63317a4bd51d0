package chunking

import "errors"

var (
	// ErrChunkRejected is returned by a fallback callback when the vector index
	// refused a piece as too large. It moves WithFallback to the next tier.
	ErrChunkRejected = errors.New("chunk rejected by index")

	// ErrInvalidTier is returned when a tier's sizes are inconsistent.
	ErrInvalidTier = errors.New("invalid chunking tier")

	// ErrEmptyLadder is returned when a ladder has no tiers.
	ErrEmptyLadder = errors.New("chunking ladder is empty")
)
