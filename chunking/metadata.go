package chunking

import (
	"strconv"
	"time"

	"github.com/poiesic/kbingest/core"
)

// MaxMetadataKeys is the per-record metadata key ceiling of the vector index.
const MaxMetadataKeys = 16

// Chunk metadata keys.
const (
	KeySourceDocumentID = "source_document_id"
	KeySourceName       = "source_name"
	KeyChunkIndex       = "chunk_index"
	KeyChunkLength      = "chunk_length"
	KeyUploadSource     = "upload_source"
	KeyUploadTime       = "upload_time"
	KeyCategory         = "category"
	KeySourceURL        = "source_url"
)

// PassThroughKeys lists the document metadata keys copied onto every chunk.
// Anything else in the document metadata stays off the chunks.
var PassThroughKeys = []string{
	KeySourceURL,
	"language",
	"author",
	"section",
	"tags",
	"version",
}

// ChunkSource is the document-level information stamped onto each chunk.
type ChunkSource struct {
	DocumentID string
	Name       string
	SourceType core.SourceType
	SourceURL  string
	UploadTime time.Time
	Category   string
	Metadata   map[string]string
}

// BuildMetadata returns the metadata for the chunk at index with the given
// length in bytes. Empty values are omitted.
func BuildMetadata(src ChunkSource, index, length int) map[string]string {
	md := make(map[string]string, MaxMetadataKeys)
	set := func(k, v string) {
		if v != "" && len(md) < MaxMetadataKeys {
			md[k] = v
		}
	}

	set(KeySourceDocumentID, src.DocumentID)
	set(KeySourceName, src.Name)
	set(KeyChunkIndex, strconv.Itoa(index))
	set(KeyChunkLength, strconv.Itoa(length))
	set(KeyUploadSource, string(src.SourceType))
	if !src.UploadTime.IsZero() {
		set(KeyUploadTime, src.UploadTime.UTC().Format(time.RFC3339))
	}
	set(KeyCategory, src.Category)
	set(KeySourceURL, src.SourceURL)

	for _, k := range PassThroughKeys {
		if _, ok := md[k]; ok {
			continue
		}
		set(k, src.Metadata[k])
	}
	return md
}

// Chunks turns split pieces into core chunks for document src.DocumentID.
func Chunks(src ChunkSource, pieces []string) []core.Chunk {
	chunks := make([]core.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = core.Chunk{
			ID:         core.ChunkID(src.DocumentID, i),
			DocumentID: src.DocumentID,
			Index:      i,
			Content:    p,
			Metadata:   BuildMetadata(src, i, len(p)),
		}
	}
	return chunks
}
