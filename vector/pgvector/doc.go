// Package pgvector provides a vector.Index stored in PostgreSQL with the
// pgvector extension.
//
// Embeddings are computed by an ai.Embedder in batches of DefaultBatchSize
// texts, at most DefaultParallelism batches at a time, and written in one
// transaction. Queries order by cosine distance (the <=> operator). Database
// errors are classified by SQLSTATE class: connection and resource failures
// are transient, program limit failures are too large, the rest permanent.
package pgvector
