package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.DocumentRepository {
		repo, err := NewRepository(t.TempDir())
		require.NoError(t, err)
		return repo
	})
}

func TestNewDocumentRepository_RequiresBackend(t *testing.T) {
	_, err := NewDocumentRepository(nil)
	assert.ErrorIs(t, err, ErrBackendRequired)
}

func TestDocumentRepository_CloseLeavesSharedBackendOpen(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, repo.Close())
	assert.False(t, backend.IsClosed())
}

func TestDocumentRepository_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewRepository(dir)
	require.NoError(t, err)
	created, err := repo.CreateDocument(ctx, storagetest.NewDocument(t, "durable", "https://example.com/d", core.SourceTypeScraper))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewRepository(dir)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.FindBySourceURL(ctx, "https://example.com/d")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestDeleteDocument_KeepsForeignIndexKeys(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	old, err := repo.CreateDocument(ctx, storagetest.NewDocument(t, "old", "https://example.com/p", core.SourceTypeScraper))
	require.NoError(t, err)
	require.NoError(t, repo.DeleteDocument(ctx, old.ID))
	replacement, err := repo.CreateDocument(ctx, storagetest.NewDocument(t, "new", "https://example.com/p", core.SourceTypeScraper))
	require.NoError(t, err)

	// Restore the stale record alone, then delete it: the URL key belongs to
	// the replacement and must survive.
	err = backend.WithTx(func(tx *badger.Txn) error {
		return tx.Set(makeDocumentKey(old.ID), storage.MarshalDocument(old))
	}, true)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteDocument(ctx, old.ID))

	got, err := repo.FindBySourceURL(ctx, "https://example.com/p")
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, got.ID)
}
