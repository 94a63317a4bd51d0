package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"
	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/postgres"
	"github.com/poiesic/kbingest/vector"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTable holds the chunk vectors.
	DefaultTable = "chunk_vectors"
	// DefaultBatchSize is the number of texts per embedding request.
	DefaultBatchSize = 16
	// DefaultParallelism bounds concurrent embedding requests per Add.
	DefaultParallelism = 4
)

// ErrDBRequired is returned when a database handle is not provided.
var ErrDBRequired = errors.New("database handle required")

// Index implements vector.Index on PostgreSQL with the pgvector extension.
type Index struct {
	db          *sql.DB
	embedder    ai.Embedder
	dimensions  int
	table       string
	batchSize   int
	parallelism int
	limits      vector.Limits
	logger      *slog.Logger
}

var _ vector.Index = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithTable sets the table name. Default is DefaultTable.
func WithTable(name string) Option {
	return func(ix *Index) error {
		if name == "" || strings.ContainsAny(name, " ;\"'") {
			return fmt.Errorf("invalid table name %q", name)
		}
		ix.table = name
		return nil
	}
}

// WithBatchSize sets the number of texts per embedding request.
func WithBatchSize(n int) Option {
	return func(ix *Index) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		ix.batchSize = n
		return nil
	}
}

// WithParallelism bounds concurrent embedding requests.
func WithParallelism(n int) Option {
	return func(ix *Index) error {
		if n <= 0 {
			return fmt.Errorf("parallelism must be positive, got %d", n)
		}
		ix.parallelism = n
		return nil
	}
}

// WithLimits overrides the per-record input limits.
func WithLimits(limits vector.Limits) Option {
	return func(ix *Index) error {
		ix.limits = limits
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// New creates an index over db, creating the extension and table if needed.
// dimensions must match the embedder's output length.
func New(ctx context.Context, db *sql.DB, embedder ai.Embedder, dimensions int, opts ...Option) (*Index, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if embedder == nil {
		return nil, vector.ErrEmbedderRequired
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}

	ix := &Index{
		db:          db,
		embedder:    embedder,
		dimensions:  dimensions,
		table:       DefaultTable,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		limits:      vector.DefaultLimits(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "pgvector-index", "table", ix.table)

	if err := ix.bootstrap(ctx); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			metadata  TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, ix.table, ix.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := ix.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	return nil
}

// Add embeds records in parallel batches and upserts them in one transaction.
func (ix *Index) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ix.limits.Check("add", records); err != nil {
		return err
	}

	embeddings := make([][]float32, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parallelism)
	for start := 0; start < len(records); start += ix.batchSize {
		end := min(start+ix.batchSize, len(records))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, r := range records[start:end] {
				texts = append(texts, r.Content)
			}
			vecs, err := ix.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return vector.NewError("embed", vector.Classify(err), err)
			}
			if len(vecs) != len(texts) {
				return vector.NewError("embed", vector.KindPermanent,
					fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts)))
			}
			for i, v := range vecs {
				if len(v) != ix.dimensions {
					return vector.NewError("embed", vector.KindPermanent,
						fmt.Errorf("%w: got %d, index has %d", vector.ErrDimensionMismatch, len(v), ix.dimensions))
				}
				embeddings[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("add", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content,
			metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, ix.table)
	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return vector.NewError("add", vector.KindPermanent, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, r.ID, r.Content, string(meta), pgv.NewVector(embeddings[i])); err != nil {
			return classify("add", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("add", err)
	}

	ix.logger.Debug("stored vector records", "count", len(records))
	return nil
}

// Delete removes records by ID and reports how many existed.
func (ix *Index) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted := 0
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, ix.table)
	for batch := range slices.Chunk(ids, 500) {
		res, err := ix.db.ExecContext(ctx, query, batch)
		if err != nil {
			return deleted, classify("delete", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, classify("delete", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// Query returns the k records nearest to text by cosine distance.
func (ix *Index) Query(ctx context.Context, text string, k int) (*vector.QueryResult, error) {
	q, err := ix.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, vector.NewError("embed", vector.Classify(err), err)
	}
	if len(q) != ix.dimensions {
		return nil, vector.NewError("embed", vector.KindPermanent,
			fmt.Errorf("%w: got %d, index has %d", vector.ErrDimensionMismatch, len(q), ix.dimensions))
	}

	query := fmt.Sprintf(`SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, ix.table)
	rows, err := ix.db.QueryContext(ctx, query, pgv.NewVector(q), k)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	res := &vector.QueryResult{}
	for rows.Next() {
		var (
			id, content, meta string
			distance          float64
		)
		if err := rows.Scan(&id, &content, &meta, &distance); err != nil {
			return nil, classify("query", err)
		}
		var metadata map[string]string
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, vector.NewError("query", vector.KindPermanent, err)
		}
		res.IDs = append(res.IDs, id)
		res.Documents = append(res.Documents, content)
		res.Metadatas = append(res.Metadatas, metadata)
		res.Distances = append(res.Distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}
	return res, nil
}

// Count returns the number of stored records.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ix.table)).Scan(&n)
	if err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// classify wraps a database error with the vector kind its SQLSTATE class
// implies, falling back to message-based classification.
func classify(op string, err error) error {
	err = postgres.TranslateError(err)
	if errors.Is(err, storage.ErrConflict) {
		return vector.NewError(op, vector.KindTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return vector.NewError(op, kindForCode(pgErr.Code), err)
	}
	return vector.NewError(op, vector.Classify(err), err)
}

func kindForCode(code string) vector.ErrorKind {
	switch {
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "53"), // insufficient resources
		strings.HasPrefix(code, "57P"):
		return vector.KindTransient
	case strings.HasPrefix(code, "54"): // program limit exceeded
		return vector.KindTooLarge
	default:
		return vector.KindPermanent
	}
}
