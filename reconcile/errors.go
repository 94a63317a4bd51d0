package reconcile

import "errors"

var (
	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("document repository required")

	// ErrIndexRequired is returned when a chunk index is not provided.
	ErrIndexRequired = errors.New("chunk index required")

	// ErrVectorDeleteFailed is returned when orphan chunks could not be
	// removed. The affected documents are left with status orphaned.
	ErrVectorDeleteFailed = errors.New("deleting orphan chunks failed")
)
