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

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/vector"
)

// ChunkIndex is the part of the vector index a Reconciler needs.
// *vector.Client implements it.
type ChunkIndex interface {
	DeleteChunks(ctx context.Context, ids []string) (*vector.DeleteResult, error)
	Connected(ctx context.Context) bool
}

var _ ChunkIndex = (*vector.Client)(nil)

// Options controls a DetectOrphans run.
type Options struct {
	// DryRun reports the orphans without touching either store.
	DryRun bool
	// SourceType selects the documents to reconcile. Default is scraper.
	SourceType core.SourceType
}

// OrphanDetail describes one orphaned document.
type OrphanDetail struct {
	ID          string `json:"id"`
	SourceURL   string `json:"source_url"`
	Title       string `json:"title"`
	ChunksCount int    `json:"chunks_count"`
}

// OrphanResult summarizes a DetectOrphans run.
type OrphanResult struct {
	Found          int            `json:"found"`
	Deleted        int            `json:"deleted"`
	Orphaned       int            `json:"orphaned"`
	ChunksRemoved  int            `json:"chunks_removed"`
	VectorsSkipped bool           `json:"vectors_skipped,omitempty"`
	DryRun         bool           `json:"dry_run"`
	Documents      []OrphanDetail `json:"documents,omitempty"`
}

// Reconciler removes documents whose source URL is gone.
type Reconciler struct {
	repo   storage.DocumentRepository
	index  ChunkIndex
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReconciler creates a reconciler over repo and index.
func NewReconciler(repo storage.DocumentRepository, index ChunkIndex, opts ...Option) (*Reconciler, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	r := &Reconciler{repo: repo, index: index, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reconcile")
	return r, nil
}

// DetectOrphans finds documents of opts.SourceType whose source URL is not
// in currentURLs and, unless opts.DryRun is set, removes them.
//
// Chunks go first, in one batched call. If that call fails the documents are
// marked orphaned and the error is returned together with the partial result.
// An index that is not connected is skipped and the rows are deleted.
func (r *Reconciler) DetectOrphans(ctx context.Context, currentURLs []string, opts Options) (*OrphanResult, error) {
	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = core.SourceTypeScraper
	}
	if err := core.ValidateSourceType(sourceType); err != nil {
		return nil, err
	}

	docs, err := r.repo.FindDocumentsNotInURLs(ctx, currentURLs, sourceType)
	if err != nil {
		return nil, fmt.Errorf("finding orphans: %w", err)
	}

	res := &OrphanResult{Found: len(docs), DryRun: opts.DryRun}
	if len(docs) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(docs))
	var chunkIDs []string
	for _, doc := range docs {
		ids = append(ids, doc.ID)
		chunkIDs = append(chunkIDs, doc.ChunkRefs...)
		res.Documents = append(res.Documents, OrphanDetail{
			ID:          doc.ID,
			SourceURL:   doc.SourceURL,
			Title:       doc.Title,
			ChunksCount: doc.ChunksCount,
		})
	}
	logger := r.logger.With("source_type", sourceType, "found", len(docs))

	if opts.DryRun {
		logger.Info("orphans found (dry run)")
		return res, nil
	}

	switch {
	case len(chunkIDs) == 0:
	case !r.index.Connected(ctx):
		logger.Warn("vector index not connected, skipping chunk deletion", "chunks", len(chunkIDs))
		res.VectorsSkipped = true
	default:
		deleted, err := r.index.DeleteChunks(ctx, chunkIDs)
		if err != nil {
			return r.markOrphaned(ctx, res, ids, err)
		}
		res.ChunksRemoved = deleted.DeletedCount
	}

	n, err := r.repo.DeleteOrphaned(ctx, ids...)
	if err != nil {
		return res, fmt.Errorf("deleting orphan documents: %w", err)
	}
	res.Deleted = n
	logger.Info("orphans removed", "deleted", n, "chunks", res.ChunksRemoved)
	return res, nil
}

func (r *Reconciler) markOrphaned(ctx context.Context, res *OrphanResult, ids []string, vecErr error) (*OrphanResult, error) {
	err := fmt.Errorf("%w: %w", ErrVectorDeleteFailed, vecErr)
	n, markErr := r.repo.MarkAsOrphaned(ctx, ids...)
	if markErr != nil {
		r.logger.Error("marking orphans failed", "documents", len(ids), "error", markErr)
		return res, errors.Join(err, fmt.Errorf("marking orphans: %w", markErr))
	}
	res.Orphaned = n
	r.logger.Warn("chunk deletion failed, documents marked orphaned", "documents", n, "error", vecErr)
	return res, err
}
