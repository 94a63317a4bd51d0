package storage

import (
	"context"
	"time"

	"github.com/poiesic/kbingest/core"
)

// ListFilter narrows ListDocuments. Zero fields match everything.
type ListFilter struct {
	SourceType core.SourceType
	Status     core.DocumentStatus
	// Limit caps the number of documents returned; 0 means no limit.
	Limit int
}

// Validate checks the filter values.
func (f ListFilter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidQuery
	}
	if f.SourceType != "" {
		if err := core.ValidateSourceType(f.SourceType); err != nil {
			return err
		}
	}
	if f.Status != "" {
		if err := core.ValidateStatus(f.Status); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether doc passes the filter's field checks.
func (f ListFilter) Matches(doc *core.Document) bool {
	if f.SourceType != "" && doc.SourceType != f.SourceType {
		return false
	}
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	return true
}

// DocumentRepository persists document records.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed; a commit that loses to
	// a concurrent writer returns ErrConflict or ErrDuplicateKey.
	// The context passed to fn carries the transaction; nested calls join it.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// FindByHash returns the document with the given content hash.
	// Returns ErrNotFound if there is none.
	FindByHash(ctx context.Context, hash string) (*core.Document, error)

	// FindBySourceURL returns the document stored under url.
	// Returns ErrNotFound if there is none or url is empty.
	FindBySourceURL(ctx context.Context, url string) (*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// CreateDocument stores a new document.
	// Generates an ID when empty and sets CreatedAt/UpdatedAt.
	// Returns ErrDuplicateKey if another document has the same content hash
	// or the same non-empty source URL.
	CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// DeleteDocument removes a document and its index entries.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error

	// FindDocumentsNotInURLs returns documents of sourceType whose non-empty
	// source URL is not in urls.
	FindDocumentsNotInURLs(ctx context.Context, urls []string, sourceType core.SourceType) ([]*core.Document, error)

	// MarkAsOrphaned sets the status of the given documents to orphaned.
	// Unknown IDs are skipped. Returns the number of documents updated.
	MarkAsOrphaned(ctx context.Context, ids ...string) (int, error)

	// DeleteOrphaned removes the given documents. Unknown IDs are skipped.
	// Returns the number of documents removed.
	DeleteOrphaned(ctx context.Context, ids ...string) (int, error)

	// ListDocuments returns documents matching filter, oldest first.
	ListDocuments(ctx context.Context, filter ListFilter) ([]*core.Document, error)

	// GetStatistics summarizes the stored documents.
	GetStatistics(ctx context.Context) (*core.Statistics, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// NewStatistics returns an empty Statistics with initialized maps.
func NewStatistics() *core.Statistics {
	return &core.Statistics{
		ByStatus:     make(map[core.DocumentStatus]int),
		BySourceType: make(map[core.SourceType]int),
	}
}

// Accumulate adds doc to stats.
func Accumulate(stats *core.Statistics, doc *core.Document) {
	stats.TotalDocuments++
	stats.TotalChunks += doc.ChunksCount
	stats.TotalChars += doc.TotalChars
	stats.ByStatus[doc.Status]++
	stats.BySourceType[doc.SourceType]++
}

// Timestamp truncates t to the microsecond precision every backend stores.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Now returns the current time at storage precision.
func Now() time.Time {
	return Timestamp(time.Now())
}
