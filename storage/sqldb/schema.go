package sqldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
)

// schema is portable across sqlite and postgres. Timestamps are stored as
// unix microseconds, list and map fields as JSON text. An empty source URL is
// stored as NULL so the UNIQUE index only constrains real URLs.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		source_type  TEXT NOT NULL,
		source_url   TEXT,
		status       TEXT NOT NULL,
		chunk_refs   TEXT NOT NULL,
		chunks_count INTEGER NOT NULL,
		total_chars  INTEGER NOT NULL,
		metadata     TEXT NOT NULL,
		created_at   BIGINT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_content_hash ON documents (content_hash)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_source_url ON documents (source_url)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_source_type ON documents (source_type, created_at)`,
}

const documentColumns = `id, title, content_hash, source_type, source_url, status,
	chunk_refs, chunks_count, total_chars, metadata, created_at, updated_at`

const selectDocument = "SELECT " + documentColumns + " FROM documents"

const insertDocument = "INSERT INTO documents (" + documentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const statisticsQuery = `SELECT status, source_type, COUNT(*),
	COALESCE(SUM(chunks_count), 0), COALESCE(SUM(total_chars), 0)
	FROM documents GROUP BY status, source_type`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*core.Document, error) {
	var (
		doc                  core.Document
		sourceType, status   string
		sourceURL            sql.NullString
		chunkRefs, metadata  string
		createdAt, updatedAt int64
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.ContentHash, &sourceType, &sourceURL, &status,
		&chunkRefs, &doc.ChunksCount, &doc.TotalChars, &metadata, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	doc.SourceType = core.SourceType(sourceType)
	doc.SourceURL = sourceURL.String
	doc.Status = core.DocumentStatus(status)
	doc.CreatedAt = time.UnixMicro(createdAt).UTC()
	doc.UpdatedAt = time.UnixMicro(updatedAt).UTC()

	if err := json.Unmarshal([]byte(chunkRefs), &doc.ChunkRefs); err != nil {
		return nil, fmt.Errorf("%w: chunk refs: %w", storage.ErrSerializationFailed, err)
	}
	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
	}
	if len(doc.ChunkRefs) == 0 {
		doc.ChunkRefs = nil
	}
	if len(doc.Metadata) == 0 {
		doc.Metadata = nil
	}
	return &doc, nil
}

func documentArgs(doc *core.Document) ([]any, error) {
	chunkRefs, err := json.Marshal(doc.ChunkRefs)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk refs: %w", storage.ErrSerializationFailed, err)
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
	}
	sourceURL := sql.NullString{String: doc.SourceURL, Valid: doc.SourceURL != ""}
	return []any{
		doc.ID, doc.Title, doc.ContentHash, string(doc.SourceType), sourceURL, string(doc.Status),
		string(chunkRefs), doc.ChunksCount, doc.TotalChars, string(metadata),
		doc.CreatedAt.UnixMicro(), doc.UpdatedAt.UnixMicro(),
	}, nil
}

// RebindDollar rewrites '?' placeholders as $1, $2, ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
