// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies where a document came from.
type SourceType string

const (
	// SourceTypeScraper marks documents collected by the site scraper.
	// Only scraper documents take part in orphan reconciliation.
	SourceTypeScraper SourceType = "scraper"
	// SourceTypeAPI marks documents pushed through the ingestion API.
	SourceTypeAPI SourceType = "api"
	// SourceTypeManualUpload marks documents uploaded by an operator.
	SourceTypeManualUpload SourceType = "manual_upload"
)

// DocumentStatus is the lifecycle state of a stored document.
type DocumentStatus string

const (
	// StatusIndexed means the document's chunks are present in the vector index.
	StatusIndexed DocumentStatus = "indexed"
	// StatusOrphaned means the source no longer lists the document and its
	// vector data could not be confirmed as removed.
	StatusOrphaned DocumentStatus = "orphaned"
	// StatusFailed means chunking or indexing could not complete.
	StatusFailed DocumentStatus = "failed"
)

// IngestStatus is the outcome of a single ingest call.
type IngestStatus string

const (
	IngestIndexed           IngestStatus = "indexed"
	IngestDuplicateRejected IngestStatus = "duplicate_rejected"
	IngestFailed            IngestStatus = "failed"
)

// Well-known document metadata keys.
const (
	MetaIngestedAt     = "ingested_at"
	MetaChunkStrategy  = "chunk_strategy"
	MetaTitleGenerated = "title_generated"
	MetaSourceDate     = "source_date"
	MetaCategory       = "category"
)

// Document is the metadata record for one ingested body of text.
// The text itself lives only in the vector index, split into chunks.
type Document struct {
	ID          string
	Title       string
	ContentHash string
	SourceType  SourceType
	SourceURL   string // empty when the document has no upstream URL
	Status      DocumentStatus
	ChunkRefs   []string // chunk IDs in the vector index, in document order
	ChunksCount int
	TotalChars  int
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewDocumentID returns a fresh random document identifier.
func NewDocumentID() string {
	return uuid.NewString()
}

// Chunk is a bounded slice of a document's text as stored in the vector index.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	Metadata   map[string]string
}

// ChunkID derives the identifier of the seq-th chunk of a document.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, seq)
}

// Statistics summarizes the contents of a document repository.
type Statistics struct {
	TotalDocuments int
	TotalChunks    int
	TotalChars     int
	ByStatus       map[DocumentStatus]int
	BySourceType   map[SourceType]int
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.ChunkRefs = slices.Clone(d.ChunkRefs)
	c.Metadata = maps.Clone(d.Metadata)
	return &c
}
