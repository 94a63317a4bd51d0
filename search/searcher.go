package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/kbingest/chunking"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/vector"
)

// HitSource runs nearest-neighbour queries. *vector.Client implements it.
type HitSource interface {
	Search(ctx context.Context, query string, k int) ([]vector.SearchHit, error)
}

var _ HitSource = (*vector.Client)(nil)

// Result is one search hit joined with its parent document.
type Result struct {
	ChunkID  string            `json:"chunk_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Distance float64           `json:"distance"`
	// Verbatim is set when the chunk contains every significant query word.
	Verbatim bool `json:"verbatim"`
	// Document is nil when the chunk's document row is gone.
	Document *core.Document `json:"document,omitempty"`
}

// Searcher provides semantic search over indexed chunks.
type Searcher struct {
	repo   storage.DocumentRepository
	index  HitSource
	logger *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(repo storage.DocumentRepository, index HitSource, opts ...Option) (*Searcher, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	s := &Searcher{
		repo:   repo,
		index:  index,
		logger: slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Search returns up to k chunks nearest to query, nearest first.
// k <= 0 uses vector.DefaultSearchK.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, query, k, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, k int, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	monitor.Start(query)

	hits, err := s.index.Search(ctx, query, k)
	if err != nil {
		s.logger.Error("vector search failed", "err", err)
		return nil, fmt.Errorf("vector search: %w", err)
	}
	monitor.AfterVectorSearch(hits)

	docs := make(map[string]*core.Document)
	terms := tokenizeAndFilter(query)
	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		docID := hit.Metadata[chunking.KeySourceDocumentID]
		doc, seen := docs[docID]
		if !seen && docID != "" {
			doc, err = s.repo.GetDocument(ctx, docID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				s.logger.Debug("chunk without document", "chunk_id", hit.ID, "document_id", docID)
				monitor.DocumentMissing(hit.ID, docID)
			case err != nil:
				s.logger.Error("error retrieving document", "document_id", docID, "err", err)
				return nil, err
			}
			docs[docID] = doc
		}

		results = append(results, &Result{
			ChunkID:  hit.ID,
			Content:  hit.Content,
			Metadata: hit.Metadata,
			Distance: hit.Distance,
			Verbatim: containsAllTerms(hit.Content, terms),
			Document: doc,
		})
	}
	monitor.AfterDocumentLookup(docs)
	monitor.Finish(results)

	return results, nil
}
