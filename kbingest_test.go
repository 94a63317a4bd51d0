package kbingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/kbingest/config"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "kb")
	cfg.AI.Provider = config.ProviderMock
	cfg.AI.Dimensions = 64
	return cfg
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("badger with shared vector index", func(t *testing.T) {
		kb, err := Open(ctx, mockConfig(t))
		require.NoError(t, err)
		defer kb.Close()

		assert.NotNil(t, kb.Repository())
		assert.NotNil(t, kb.VectorClient())
		assert.True(t, kb.VectorClient().Connected(ctx))
	})

	t.Run("sqlite with separate badger vectors", func(t *testing.T) {
		cfg := mockConfig(t)
		dir := t.TempDir()
		cfg.Storage.Backend = config.StorageSQLite
		cfg.Storage.Path = filepath.Join(dir, "kb.db")
		cfg.Vector.Path = filepath.Join(dir, "vectors")

		kb, err := Open(ctx, cfg)
		require.NoError(t, err)
		require.NoError(t, kb.Close())
		assert.FileExists(t, cfg.Storage.Path)
		assert.DirExists(t, cfg.Vector.Path)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := mockConfig(t)
		cfg.Storage.Backend = "mysql"
		_, err := Open(ctx, cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		cfg := mockConfig(t)
		cfg.Storage.Path = tmpFile
		kb, err := Open(ctx, cfg)
		assert.Error(t, err)
		assert.Nil(t, kb)
	})
}

func TestKnowledgeBase_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig(t)
	cfg.Ingestion.Concurrency = 2

	kb, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer kb.Close()

	pipeline, err := kb.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	batch := pipeline.IngestBatch(ctx, []ingestion.IngestRequest{
		{Body: "Reset your password from the account settings page.", SourceURL: "https://help/reset", SourceType: core.SourceTypeScraper},
		{Body: "Invoices are emailed on the first day of each month.", SourceURL: "https://help/billing", SourceType: core.SourceTypeScraper},
	})
	assert.Equal(t, 2, batch.Successful)

	dup, err := pipeline.Ingest(ctx, ingestion.IngestRequest{Body: "Reset your password from the account settings page."})
	require.NoError(t, err)
	assert.Equal(t, core.IngestDuplicateRejected, dup.Status)

	searcher, err := kb.NewSearcher()
	require.NoError(t, err)
	results, err := searcher.Search(ctx, "reset password settings", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Document)
	assert.Equal(t, "https://help/reset", results[0].Document.SourceURL)

	reconciler, err := kb.NewReconciler()
	require.NoError(t, err)
	orphans, err := reconciler.DetectOrphans(ctx, []string{"https://help/reset"}, reconcile.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, orphans.Deleted)

	stats, err := kb.Repository().GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, stats.TotalChunks, kb.VectorClient().Stats(ctx).Count)
}

func TestKnowledgeBase_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig(t)

	kb, err := Open(ctx, cfg)
	require.NoError(t, err)
	pipeline, err := kb.NewIngestionPipeline()
	require.NoError(t, err)
	res, err := pipeline.Ingest(ctx, ingestion.IngestRequest{Body: "Persistent fact."})
	require.NoError(t, err)
	pipeline.Release()
	require.NoError(t, kb.Close())

	kb, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer kb.Close()

	doc, err := kb.Repository().GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Persistent fact.", doc.Title)
	assert.Equal(t, 1, kb.VectorClient().Stats(ctx).Count)
}
