// Package ingestion turns raw documents into indexed, deduplicated records.
//
// A Pipeline validates and fingerprints each document, rejects exact
// duplicates, chunks the text down a ladder of sizes until the vector index
// accepts every chunk, and then records the document inside a repository
// transaction. A document stored under the same source URL with different
// content is replaced: its chunks are removed from the vector index first,
// then its row.
//
// Two ingests racing for one source URL converge on a single surviving
// document. A commit that loses the race (storage.ErrDuplicateKey or
// storage.ErrConflict) retries the transaction after a short backoff; when
// retries run out the pipeline looks the URL up again and reports the
// winner as a duplicate. Whenever a new record is not committed, the chunks
// indexed for it are deleted again.
//
// IngestBatch runs many ingests through a fixed-size ants pool. Submission
// blocks while the pool is full, so at most the pool capacity of documents
// are in flight at once.
package ingestion
