package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when a document repository is not provided.
	ErrRepositoryRequired = errors.New("document repository required")

	// ErrIndexRequired is returned when a chunk index is not provided.
	ErrIndexRequired = errors.New("chunk index required")

	// ErrStaleChunks indicates the chunks of a replaced document could not be
	// removed from the vector index; the replaced record was kept.
	ErrStaleChunks = errors.New("removing chunks of replaced document failed")

	// ErrPanic indicates an ingest panicked; the panic was contained.
	ErrPanic = errors.New("ingest panicked")

	// ErrRaceUnresolved indicates commit retries ran out and no winning
	// document could be found.
	ErrRaceUnresolved = errors.New("concurrent write could not be resolved")
)
