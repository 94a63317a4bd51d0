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

package kbingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/ai/mock"
	"github.com/poiesic/kbingest/ai/openai"
	"github.com/poiesic/kbingest/config"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/reconcile"
	"github.com/poiesic/kbingest/search"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/badger"
	"github.com/poiesic/kbingest/storage/postgres"
	"github.com/poiesic/kbingest/storage/sqldb"
	"github.com/poiesic/kbingest/storage/sqlite"
	"github.com/poiesic/kbingest/vector"
	"github.com/poiesic/kbingest/vector/pgvector"
)

// KnowledgeBase wires a document repository, a vector index and an embedding
// provider according to a config.Config.
type KnowledgeBase struct {
	cfg      *config.Config
	repo     storage.DocumentRepository
	client   *vector.Client
	provider ai.AIProvider
	closers  []func() error
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open builds the stores described by cfg. Close releases them.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*KnowledgeBase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	kb := &KnowledgeBase{cfg: cfg, logger: o.logger.With("component", "kbingest")}
	if err := kb.open(ctx); err != nil {
		kb.Close()
		return nil, err
	}
	return kb, nil
}

func (kb *KnowledgeBase) open(ctx context.Context) error {
	provider, err := newProvider(kb.cfg)
	if err != nil {
		return err
	}
	kb.provider = provider
	kb.closers = append(kb.closers, provider.Close)

	var (
		badgerBackend *badger.Backend
		sqlDB         *sql.DB
	)
	switch kb.cfg.Storage.Backend {
	case config.StorageBadger:
		badgerBackend, err = badger.OpenBackend(kb.cfg.Storage.Path, false, badger.WithBackendLogger(kb.logger))
		if err != nil {
			return fmt.Errorf("opening badger storage: %w", err)
		}
		kb.closers = append(kb.closers, badgerBackend.Close)
		repo, err := badger.NewDocumentRepository(badgerBackend)
		if err != nil {
			return err
		}
		kb.repo = repo
	case config.StorageSQLite:
		repo, err := sqlite.Open(ctx, kb.cfg.Storage.Path, sqldb.WithLogger(kb.logger))
		if err != nil {
			return fmt.Errorf("opening sqlite storage: %w", err)
		}
		kb.closers = append(kb.closers, repo.Close)
		kb.repo = repo
	case config.StoragePostgres:
		repo, err := postgres.Open(ctx, kb.cfg.Storage.DSN, sqldb.WithLogger(kb.logger))
		if err != nil {
			return fmt.Errorf("opening postgres storage: %w", err)
		}
		kb.closers = append(kb.closers, repo.Close)
		kb.repo = repo
		sqlDB = repo.DB()
	}

	index, err := kb.openIndex(ctx, badgerBackend, sqlDB)
	if err != nil {
		return err
	}
	kb.client, err = vector.NewClient(index,
		vector.WithMaxAttempts(kb.cfg.Vector.MaxAttempts),
		vector.WithBaseDelay(kb.cfg.Vector.BaseDelay),
		vector.WithRateLimit(kb.cfg.Vector.RateLimit, kb.cfg.Vector.RateBurst),
		vector.WithLogger(kb.logger),
	)
	return err
}

// openIndex opens the configured vector index, sharing the repository's
// badger database or postgres pool when both live in the same place.
func (kb *KnowledgeBase) openIndex(ctx context.Context, badgerBackend *badger.Backend, sqlDB *sql.DB) (vector.Index, error) {
	vc := kb.cfg.Vector
	embedder := kb.provider.Embedder()

	switch vc.Backend {
	case config.VectorBadger:
		backend := badgerBackend
		if vc.Path != "" && (backend == nil || vc.Path != kb.cfg.Storage.Path) {
			var err error
			backend, err = badger.OpenBackend(vc.Path, false, badger.WithBackendLogger(kb.logger))
			if err != nil {
				return nil, fmt.Errorf("opening badger vector index: %w", err)
			}
			kb.closers = append(kb.closers, backend.Close)
		}
		return badger.NewVectorIndex(backend, embedder,
			badger.WithMaxRecordChars(vc.MaxRecordChars),
			badger.WithMaxMetadataKeys(vc.MaxMetadataKeys),
			badger.WithVectorLogger(kb.logger),
		)
	case config.VectorPGVector:
		db := sqlDB
		if db == nil || vc.DSN != kb.cfg.Storage.DSN {
			var err error
			db, err = postgres.OpenDB(ctx, vc.DSN)
			if err != nil {
				return nil, fmt.Errorf("opening pgvector index: %w", err)
			}
			kb.closers = append(kb.closers, db.Close)
		}
		return pgvector.New(ctx, db, embedder, kb.cfg.AI.Dimensions,
			pgvector.WithTable(vc.Table),
			pgvector.WithBatchSize(vc.BatchSize),
			pgvector.WithParallelism(vc.Parallelism),
			pgvector.WithLimits(vector.Limits{MaxRecordChars: vc.MaxRecordChars, MaxMetadataKeys: vc.MaxMetadataKeys}),
			pgvector.WithLogger(kb.logger),
		)
	}
	return nil, fmt.Errorf("%w: unknown vector backend %q", config.ErrInvalidConfig, vc.Backend)
}

func newProvider(cfg *config.Config) (ai.AIProvider, error) {
	if cfg.AI.Provider == config.ProviderMock {
		embedder := mock.NewMockEmbedder()
		embedder.Dimensions = cfg.AI.Dimensions
		return mock.NewMockProviderWithEmbedder(embedder), nil
	}
	return openai.NewProvider(cfg.AIConfig())
}

// Close releases every store in reverse opening order.
func (kb *KnowledgeBase) Close() error {
	var errs []error
	for i := len(kb.closers) - 1; i >= 0; i-- {
		if err := kb.closers[i](); err != nil {
			kb.logger.Error("error closing component", "err", err)
			errs = append(errs, err)
		}
	}
	kb.closers = nil
	return errors.Join(errs...)
}

// Repository returns the document repository.
func (kb *KnowledgeBase) Repository() storage.DocumentRepository {
	return kb.repo
}

// VectorClient returns the retrying vector index client.
func (kb *KnowledgeBase) VectorClient() *vector.Client {
	return kb.client
}

// NewIngestionPipeline creates a pipeline using the configured concurrency,
// race backoff and chunking ladder. opts are applied after those.
func (kb *KnowledgeBase) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithConcurrency(kb.cfg.Ingestion.Concurrency),
		ingestion.WithRaceBackoff(kb.cfg.Ingestion.RaceBackoff...),
		ingestion.WithLadder(kb.cfg.Ladder()),
		ingestion.WithLogger(kb.logger),
	}
	return ingestion.NewPipeline(kb.repo, kb.client, append(base, opts...)...)
}

// NewReconciler creates an orphan reconciler.
func (kb *KnowledgeBase) NewReconciler(opts ...reconcile.Option) (*reconcile.Reconciler, error) {
	return reconcile.NewReconciler(kb.repo, kb.client, append([]reconcile.Option{reconcile.WithLogger(kb.logger)}, opts...)...)
}

// NewSearcher creates a searcher.
func (kb *KnowledgeBase) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(kb.repo, kb.client, append([]search.Option{search.WithLogger(kb.logger)}, opts...)...)
}
