package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.DocumentRepository {
		repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "documents.db"))
		require.NoError(t, err)
		return repo
	})
}

func TestOpen_InMemory(t *testing.T) {
	repo, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer repo.Close()

	stats, err := repo.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "documents.db")
	ctx := context.Background()

	repo, err := Open(ctx, path)
	require.NoError(t, err)
	created, err := repo.CreateDocument(ctx, storagetest.NewDocument(t, "kept", "https://example.com/k", core.SourceTypeScraper))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(ctx, path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.FindByHash(ctx, created.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestTranslateError_PassesThroughUnknown(t *testing.T) {
	plain := errors.New("plain")
	assert.Equal(t, plain, dialect{}.TranslateError(plain))
}
