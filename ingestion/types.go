package ingestion

import (
	"context"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/vector"
)

// ChunkIndex is the vector side of ingestion. *vector.Client implements it.
type ChunkIndex interface {
	AddDocuments(ctx context.Context, chunks []core.Chunk) error
	DeleteChunks(ctx context.Context, ids []string) (*vector.DeleteResult, error)
}

var _ ChunkIndex = (*vector.Client)(nil)

// IngestRequest is one document to ingest.
type IngestRequest struct {
	Body       string            `json:"body"`
	Title      string            `json:"title,omitempty"`
	SourceURL  string            `json:"source_url,omitempty"`
	SourceType core.SourceType   `json:"source_type,omitempty"` // empty means manual_upload
	Date       time.Time         `json:"date,omitzero"`
	Category   string            `json:"category,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IngestResult reports the outcome of one ingest. Success is set only when a
// new document was indexed.
type IngestResult struct {
	Success    bool              `json:"success"`
	Status     core.IngestStatus `json:"status"`
	DocumentID string            `json:"document_id,omitempty"`
	// ReplacedID is the document previously stored under the same source URL.
	ReplacedID  string `json:"replaced_id,omitempty"`
	ChunksCount int    `json:"chunks_count,omitempty"`
	TotalLength int    `json:"total_length,omitempty"`
	// Strategy names the chunking tier that was accepted.
	Strategy string `json:"strategy,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// BatchResult tallies an IngestBatch call. Details are in input order.
type BatchResult struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Duplicates int             `json:"duplicates"`
	Details    []*IngestResult `json:"details"`
}

func failed(err error) *IngestResult {
	return &IngestResult{Status: core.IngestFailed, Error: err.Error(), Err: err}
}

func duplicate(id string) *IngestResult {
	return &IngestResult{Status: core.IngestDuplicateRejected, DocumentID: id}
}
