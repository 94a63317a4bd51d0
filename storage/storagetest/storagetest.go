// Package storagetest provides a conformance suite for storage.DocumentRepository
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository. The suite closes it when the test ends.
type Factory func(t *testing.T) storage.DocumentRepository

// NewDocument returns a valid indexed document whose hash is derived from body.
func NewDocument(t *testing.T, body, url string, sourceType core.SourceType) *core.Document {
	t.Helper()
	hash, err := core.Fingerprint(body)
	require.NoError(t, err)
	return &core.Document{
		Title:       core.GenerateTitle(body),
		ContentHash: hash,
		SourceType:  sourceType,
		SourceURL:   url,
		Status:      core.StatusIndexed,
		ChunkRefs:   []string{"c0", "c1"},
		ChunksCount: 2,
		TotalChars:  len(body),
		Metadata:    map[string]string{core.MetaChunkStrategy: "large"},
	}
}

// Run executes the conformance suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	open := func(t *testing.T) storage.DocumentRepository {
		repo := newRepo(t)
		t.Cleanup(func() { repo.Close() })
		return repo
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		doc := NewDocument(t, "How to reset a forgotten password", "https://example.com/reset", core.SourceTypeScraper)
		created, err := repo.CreateDocument(ctx, doc)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.False(t, created.UpdatedAt.IsZero())
		assert.Empty(t, doc.ID, "input must not be modified")

		got, err := repo.GetDocument(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, doc.Title, got.Title)
		assert.Equal(t, doc.ContentHash, got.ContentHash)
		assert.Equal(t, doc.SourceType, got.SourceType)
		assert.Equal(t, doc.SourceURL, got.SourceURL)
		assert.Equal(t, core.StatusIndexed, got.Status)
		assert.Equal(t, []string{"c0", "c1"}, got.ChunkRefs)
		assert.Equal(t, 2, got.ChunksCount)
		assert.Equal(t, doc.TotalChars, got.TotalChars)
		assert.Equal(t, "large", got.Metadata[core.MetaChunkStrategy])
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("CreateKeepsExplicitIDAndTime", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		doc := NewDocument(t, "explicit", "", core.SourceTypeAPI)
		doc.ID = "doc-explicit"
		doc.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		created, err := repo.CreateDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, "doc-explicit", created.ID)

		got, err := repo.GetDocument(ctx, "doc-explicit")
		require.NoError(t, err)
		assert.True(t, got.CreatedAt.Equal(doc.CreatedAt))
		assert.Empty(t, got.SourceURL)
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		repo := open(t)
		doc := NewDocument(t, "body", "", core.SourceType("ftp"))
		_, err := repo.CreateDocument(context.Background(), doc)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		_, err := repo.GetDocument(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindByHash(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindBySourceURL(ctx, "https://example.com/missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindBySourceURL(ctx, "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("FindByHashAndURL", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		created, err := repo.CreateDocument(ctx, NewDocument(t, "shipping times", "https://example.com/shipping", core.SourceTypeScraper))
		require.NoError(t, err)

		byHash, err := repo.FindByHash(ctx, created.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byHash.ID)

		byURL, err := repo.FindBySourceURL(ctx, "https://example.com/shipping")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byURL.ID)
	})

	t.Run("DuplicateHash", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		_, err := repo.CreateDocument(ctx, NewDocument(t, "same body", "https://example.com/a", core.SourceTypeScraper))
		require.NoError(t, err)
		_, err = repo.CreateDocument(ctx, NewDocument(t, "same body", "https://example.com/b", core.SourceTypeScraper))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("DuplicateURL", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		_, err := repo.CreateDocument(ctx, NewDocument(t, "first body", "https://example.com/a", core.SourceTypeScraper))
		require.NoError(t, err)
		_, err = repo.CreateDocument(ctx, NewDocument(t, "second body", "https://example.com/a", core.SourceTypeScraper))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("EmptyURLIsNotUnique", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		_, err := repo.CreateDocument(ctx, NewDocument(t, "first upload", "", core.SourceTypeManualUpload))
		require.NoError(t, err)
		_, err = repo.CreateDocument(ctx, NewDocument(t, "second upload", "", core.SourceTypeManualUpload))
		require.NoError(t, err)
	})

	t.Run("DeleteDocument", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		created, err := repo.CreateDocument(ctx, NewDocument(t, "to delete", "https://example.com/del", core.SourceTypeScraper))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteDocument(ctx, created.ID))
		_, err = repo.GetDocument(ctx, created.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindByHash(ctx, created.ContentHash)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindBySourceURL(ctx, created.SourceURL)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, repo.DeleteDocument(ctx, created.ID), storage.ErrNotFound)

		// Hash and URL are free again.
		_, err = repo.CreateDocument(ctx, NewDocument(t, "to delete", "https://example.com/del", core.SourceTypeScraper))
		require.NoError(t, err)
	})

	t.Run("TransactionRollback", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		boom := errors.New("boom")

		var id string
		err := repo.WithTransaction(ctx, func(ctx context.Context) error {
			created, err := repo.CreateDocument(ctx, NewDocument(t, "rolled back", "https://example.com/rb", core.SourceTypeScraper))
			if err != nil {
				return err
			}
			id = created.ID
			return boom
		})
		assert.ErrorIs(t, err, boom)
		require.NotEmpty(t, id)

		_, err = repo.GetDocument(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TransactionReadsOwnWrites", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		err := repo.WithTransaction(ctx, func(ctx context.Context) error {
			stale, err := repo.CreateDocument(ctx, NewDocument(t, "old version", "https://example.com/page", core.SourceTypeScraper))
			if err != nil {
				return err
			}
			found, err := repo.FindBySourceURL(ctx, "https://example.com/page")
			if err != nil {
				return err
			}
			if found.ID != stale.ID {
				return fmt.Errorf("found %s, want %s", found.ID, stale.ID)
			}
			if err := repo.DeleteDocument(ctx, stale.ID); err != nil {
				return err
			}
			_, err = repo.CreateDocument(ctx, NewDocument(t, "new version", "https://example.com/page", core.SourceTypeScraper))
			return err
		})
		require.NoError(t, err)

		got, err := repo.FindBySourceURL(ctx, "https://example.com/page")
		require.NoError(t, err)
		want, err := core.Fingerprint("new version")
		require.NoError(t, err)
		assert.Equal(t, want, got.ContentHash)
	})

	t.Run("NestedTransactionJoins", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := repo.WithTransaction(ctx, func(ctx context.Context) error {
			err := repo.WithTransaction(ctx, func(ctx context.Context) error {
				_, err := repo.CreateDocument(ctx, NewDocument(t, "inner", "", core.SourceTypeAPI))
				return err
			})
			if err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stats, err := repo.GetStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalDocuments, "inner write must roll back with the outer transaction")
	})

	t.Run("ConcurrentCreateSameURL", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				doc := NewDocument(t, fmt.Sprintf("version %d", i), "https://example.com/contended", core.SourceTypeScraper)
				_, errs[i] = repo.CreateDocument(ctx, doc)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, storage.IsRace(err), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("FindDocumentsNotInURLs", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		keep, err := repo.CreateDocument(ctx, NewDocument(t, "kept", "https://example.com/kept", core.SourceTypeScraper))
		require.NoError(t, err)
		gone, err := repo.CreateDocument(ctx, NewDocument(t, "gone", "https://example.com/gone", core.SourceTypeScraper))
		require.NoError(t, err)
		_, err = repo.CreateDocument(ctx, NewDocument(t, "api doc", "https://example.com/api", core.SourceTypeAPI))
		require.NoError(t, err)
		_, err = repo.CreateDocument(ctx, NewDocument(t, "no url", "", core.SourceTypeScraper))
		require.NoError(t, err)

		docs, err := repo.FindDocumentsNotInURLs(ctx, []string{keep.SourceURL}, core.SourceTypeScraper)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, gone.ID, docs[0].ID)

		docs, err = repo.FindDocumentsNotInURLs(ctx, nil, core.SourceTypeScraper)
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("MarkAsOrphaned", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		a, err := repo.CreateDocument(ctx, NewDocument(t, "a", "https://example.com/a", core.SourceTypeScraper))
		require.NoError(t, err)
		b, err := repo.CreateDocument(ctx, NewDocument(t, "b", "https://example.com/b", core.SourceTypeScraper))
		require.NoError(t, err)

		n, err := repo.MarkAsOrphaned(ctx, a.ID, "missing")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := repo.GetDocument(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusOrphaned, got.Status)
		got, err = repo.GetDocument(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusIndexed, got.Status)

		n, err = repo.MarkAsOrphaned(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("DeleteOrphaned", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		a, err := repo.CreateDocument(ctx, NewDocument(t, "a", "https://example.com/a", core.SourceTypeScraper))
		require.NoError(t, err)
		b, err := repo.CreateDocument(ctx, NewDocument(t, "b", "https://example.com/b", core.SourceTypeScraper))
		require.NoError(t, err)

		n, err := repo.DeleteOrphaned(ctx, a.ID, b.ID, "missing")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		stats, err := repo.GetStatistics(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalDocuments)
	})

	t.Run("ListDocuments", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, st := range []core.SourceType{core.SourceTypeScraper, core.SourceTypeAPI, core.SourceTypeScraper} {
			doc := NewDocument(t, fmt.Sprintf("doc %d", i), "", st)
			doc.ID = fmt.Sprintf("doc-%d", i)
			doc.CreatedAt = base.Add(time.Duration(2-i) * time.Hour)
			_, err := repo.CreateDocument(ctx, doc)
			require.NoError(t, err)
		}

		all, err := repo.ListDocuments(ctx, storage.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"doc-2", "doc-1", "doc-0"}, ids(all))

		scraper, err := repo.ListDocuments(ctx, storage.ListFilter{SourceType: core.SourceTypeScraper})
		require.NoError(t, err)
		assert.Equal(t, []string{"doc-2", "doc-0"}, ids(scraper))

		limited, err := repo.ListDocuments(ctx, storage.ListFilter{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"doc-2"}, ids(limited))

		_, err = repo.ListDocuments(ctx, storage.ListFilter{Limit: -1})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("GetStatistics", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		a, err := repo.CreateDocument(ctx, NewDocument(t, "alpha", "https://example.com/a", core.SourceTypeScraper))
		require.NoError(t, err)
		_, err = repo.CreateDocument(ctx, NewDocument(t, "beta", "", core.SourceTypeAPI))
		require.NoError(t, err)
		_, err = repo.MarkAsOrphaned(ctx, a.ID)
		require.NoError(t, err)

		stats, err := repo.GetStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalDocuments)
		assert.Equal(t, 4, stats.TotalChunks)
		assert.Equal(t, len("alpha")+len("beta"), stats.TotalChars)
		assert.Equal(t, 1, stats.ByStatus[core.StatusOrphaned])
		assert.Equal(t, 1, stats.ByStatus[core.StatusIndexed])
		assert.Equal(t, 1, stats.BySourceType[core.SourceTypeScraper])
		assert.Equal(t, 1, stats.BySourceType[core.SourceTypeAPI])
	})
}

func ids(docs []*core.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
