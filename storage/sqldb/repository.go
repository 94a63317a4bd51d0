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

package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
)

// ErrDBRequired is returned when a database handle is not provided.
var ErrDBRequired = errors.New("database handle required")

// ErrDialectRequired is returned when a dialect is not provided.
var ErrDialectRequired = errors.New("sql dialect required")

// Dialect adapts the repository to one SQL engine.
type Dialect interface {
	// Name identifies the engine in logs.
	Name() string
	// Rebind rewrites '?' placeholders into the engine's syntax.
	Rebind(query string) string
	// TranslateError maps driver errors onto storage errors. Errors it does
	// not recognize are returned unchanged.
	TranslateError(err error) error
}

// Repository implements storage.DocumentRepository on database/sql.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ storage.DocumentRepository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates a repository over db and creates the schema if needed.
// The repository takes ownership of db and closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if dialect == nil {
		return nil, ErrDialectRequired
	}
	r := &Repository{db: db, dialect: dialect, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", dialect.Name()+"-repository")

	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	r.logger.Debug("schema ready")
	return nil
}

// DB returns the underlying handle.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

type txKey struct{}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the context's transaction or the database handle.
func (r *Repository) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// WithTransaction executes fn within a transaction carried by the context
// handed to fn. A context that already carries a transaction is joined.
func (r *Repository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.translate(err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		err = r.translate(err)
		if storage.IsRace(err) {
			return err
		}
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

func (r *Repository) translate(err error) error {
	if err == nil {
		return nil
	}
	return r.dialect.TranslateError(err)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := r.conn(ctx).ExecContext(ctx, r.dialect.Rebind(query), args...)
	return res, r.translate(err)
}

func (r *Repository) queryDocuments(ctx context.Context, query string, args ...any) ([]*core.Document, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, r.translate(err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.translate(err)
	}
	return docs, nil
}

func (r *Repository) queryDocument(ctx context.Context, query string, args ...any) (*core.Document, error) {
	row := r.conn(ctx).QueryRowContext(ctx, r.dialect.Rebind(query), args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, r.translate(err)
	}
	return doc, nil
}

// FindByHash returns the document with the given content hash.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*core.Document, error) {
	return r.queryDocument(ctx, selectDocument+" WHERE content_hash = ?", hash)
}

// FindBySourceURL returns the document stored under url.
func (r *Repository) FindBySourceURL(ctx context.Context, url string) (*core.Document, error) {
	if url == "" {
		return nil, storage.ErrNotFound
	}
	return r.queryDocument(ctx, selectDocument+" WHERE source_url = ?", url)
}

// GetDocument retrieves a single document by ID.
func (r *Repository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	return r.queryDocument(ctx, selectDocument+" WHERE id = ?", id)
}

// CreateDocument inserts a new document. The UNIQUE indexes on content_hash
// and source_url turn a lost race into ErrDuplicateKey.
func (r *Repository) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = core.NewDocumentID()
	}
	now := storage.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.CreatedAt = storage.Timestamp(stored.CreatedAt)
	stored.UpdatedAt = now

	args, err := documentArgs(stored)
	if err != nil {
		return nil, err
	}
	if _, err := r.exec(ctx, insertDocument, args...); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// DeleteDocument removes a document.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.exec(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.translate(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindDocumentsNotInURLs returns documents of sourceType whose source URL is
// set and not listed in urls.
func (r *Repository) FindDocumentsNotInURLs(ctx context.Context, urls []string, sourceType core.SourceType) ([]*core.Document, error) {
	keep := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		keep[u] = struct{}{}
	}

	candidates, err := r.queryDocuments(ctx,
		selectDocument+" WHERE source_type = ? AND source_url IS NOT NULL ORDER BY created_at, id",
		string(sourceType))
	if err != nil {
		return nil, err
	}

	var docs []*core.Document
	for _, doc := range candidates {
		if _, ok := keep[doc.SourceURL]; !ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// MarkAsOrphaned sets the given documents' status to orphaned.
func (r *Repository) MarkAsOrphaned(ctx context.Context, ids ...string) (int, error) {
	updated := 0
	err := r.WithTransaction(ctx, func(ctx context.Context) error {
		now := storage.Now().UnixMicro()
		for _, id := range ids {
			res, err := r.exec(ctx, "UPDATE documents SET status = ?, updated_at = ? WHERE id = ?",
				string(core.StatusOrphaned), now, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return r.translate(err)
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// DeleteOrphaned removes the given documents.
func (r *Repository) DeleteOrphaned(ctx context.Context, ids ...string) (int, error) {
	deleted := 0
	err := r.WithTransaction(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			res, err := r.exec(ctx, "DELETE FROM documents WHERE id = ?", id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return r.translate(err)
			}
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ListDocuments returns documents matching filter, oldest first.
func (r *Repository) ListDocuments(ctx context.Context, filter storage.ListFilter) ([]*core.Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, string(filter.SourceType))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	var q strings.Builder
	q.WriteString(selectDocument)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY created_at, id")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	return r.queryDocuments(ctx, q.String(), args...)
}

// GetStatistics summarizes the stored documents.
func (r *Repository) GetStatistics(ctx context.Context) (*core.Statistics, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, r.dialect.Rebind(statisticsQuery))
	if err != nil {
		return nil, r.translate(err)
	}
	defer rows.Close()

	stats := storage.NewStatistics()
	for rows.Next() {
		var (
			status, sourceType  string
			docs, chunks, chars int64
		)
		if err := rows.Scan(&status, &sourceType, &docs, &chunks, &chars); err != nil {
			return nil, r.translate(err)
		}
		stats.TotalDocuments += int(docs)
		stats.TotalChunks += int(chunks)
		stats.TotalChars += int(chars)
		stats.ByStatus[core.DocumentStatus(status)] += int(docs)
		stats.BySourceType[core.SourceType(sourceType)] += int(docs)
	}
	if err := rows.Err(); err != nil {
		return nil, r.translate(err)
	}
	return stats, nil
}
