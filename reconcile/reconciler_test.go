package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/badger"
	"github.com/poiesic/kbingest/vector"
	"github.com/poiesic/kbingest/vector/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo       storage.DocumentRepository
	index      *mock.Index
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	index := mock.NewIndex()
	client, err := vector.NewClient(index, vector.WithBaseDelay(time.Millisecond))
	require.NoError(t, err)

	r, err := NewReconciler(repo, client)
	require.NoError(t, err)
	return &fixture{repo: repo, index: index, reconciler: r}
}

// seed stores a document with n chunks present in the index.
func (f *fixture) seed(t *testing.T, url string, sourceType core.SourceType, n int) *core.Document {
	t.Helper()
	ctx := context.Background()
	hash, err := core.Fingerprint("body of " + url + string(sourceType))
	require.NoError(t, err)

	doc := &core.Document{
		ID:          core.NewDocumentID(),
		Title:       "Page " + url,
		ContentHash: hash,
		SourceType:  sourceType,
		SourceURL:   url,
		Status:      core.StatusIndexed,
		ChunksCount: n,
	}
	var records []vector.Record
	for i := range n {
		id := core.ChunkID(doc.ID, i)
		doc.ChunkRefs = append(doc.ChunkRefs, id)
		records = append(records, vector.Record{ID: id, Content: fmt.Sprintf("chunk %d", i)})
	}
	require.NoError(t, f.index.Add(ctx, records))

	stored, err := f.repo.CreateDocument(ctx, doc)
	require.NoError(t, err)
	return stored
}

func (f *fixture) status(t *testing.T, id string) core.DocumentStatus {
	t.Helper()
	doc, err := f.repo.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc.Status
}

func TestNewReconciler_Validation(t *testing.T) {
	client, err := vector.NewClient(mock.NewIndex())
	require.NoError(t, err)
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewReconciler(nil, client)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = NewReconciler(repo, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
}

func TestDetectOrphans_NoneFound(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "https://x/a", core.SourceTypeScraper, 2)

	res, err := f.reconciler.DetectOrphans(context.Background(), []string{"https://x/a"}, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Found)
	assert.Zero(t, res.Deleted)
	assert.Empty(t, res.Documents)
	assert.Zero(t, f.index.DeleteCalls())
}

func TestDetectOrphans_DeletesChunksThenRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep := f.seed(t, "https://x/a", core.SourceTypeScraper, 2)
	goneB := f.seed(t, "https://x/b", core.SourceTypeScraper, 3)
	goneC := f.seed(t, "https://x/c", core.SourceTypeScraper, 1)
	api := f.seed(t, "https://x/api", core.SourceTypeAPI, 1)

	res, err := f.reconciler.DetectOrphans(ctx, []string{"https://x/a"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 4, res.ChunksRemoved)
	assert.False(t, res.DryRun)
	assert.Equal(t, 1, f.index.DeleteCalls(), "chunks are deleted in one batch")

	for _, gone := range []*core.Document{goneB, goneC} {
		_, err := f.repo.GetDocument(ctx, gone.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	_, err = f.repo.GetDocument(ctx, keep.ID)
	assert.NoError(t, err)
	_, err = f.repo.GetDocument(ctx, api.ID)
	assert.NoError(t, err, "other source types are left alone")

	want := append(keep.ChunkRefs, api.ChunkRefs...)
	assert.ElementsMatch(t, want, f.index.IDs())
}

func TestDetectOrphans_DryRunIsPure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 5 {
		f.seed(t, fmt.Sprintf("https://x/%d", i), core.SourceTypeScraper, 2)
	}
	before := f.index.IDs()

	res, err := f.reconciler.DetectOrphans(ctx, nil, Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 5, res.Found)
	assert.Zero(t, res.Deleted)
	require.Len(t, res.Documents, 5)
	for _, d := range res.Documents {
		assert.Equal(t, 2, d.ChunksCount)
		assert.NotEmpty(t, d.SourceURL)
	}

	assert.Zero(t, f.index.DeleteCalls())
	assert.Equal(t, before, f.index.IDs())
	stats, err := f.repo.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ByStatus[core.StatusIndexed])
}

func TestDetectOrphans_VectorFailureMarksOrphaned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "https://x/a", core.SourceTypeScraper, 2)
	b := f.seed(t, "https://x/b", core.SourceTypeScraper, 2)
	f.index.DeleteFunc = func(context.Context, []string) error {
		return errors.New("403 forbidden")
	}

	res, err := f.reconciler.DetectOrphans(ctx, []string{"https://x/other"}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVectorDeleteFailed)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Orphaned)
	assert.Zero(t, res.Deleted)

	assert.Equal(t, core.StatusOrphaned, f.status(t, a.ID))
	assert.Equal(t, core.StatusOrphaned, f.status(t, b.ID))
	assert.Len(t, f.index.IDs(), 4)
}

func TestDetectOrphans_OrphanedDocumentsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "https://x/a", core.SourceTypeScraper, 2)

	f.index.DeleteFunc = func(context.Context, []string) error { return errors.New("unauthorized") }
	_, err := f.reconciler.DetectOrphans(ctx, nil, Options{})
	require.Error(t, err)
	require.Equal(t, core.StatusOrphaned, f.status(t, a.ID))

	f.index.DeleteFunc = nil
	res, err := f.reconciler.DetectOrphans(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, f.index.IDs())
}

func TestDetectOrphans_DisconnectedIndexSkipsVectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, "https://x/a", core.SourceTypeScraper, 2)
	f.index.CountFunc = func(context.Context) (int, error) {
		return 0, errors.New("connection refused")
	}

	res, err := f.reconciler.DetectOrphans(ctx, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res.VectorsSkipped)
	assert.Equal(t, 1, res.Deleted)
	assert.Zero(t, f.index.DeleteCalls())

	_, err = f.repo.GetDocument(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDetectOrphans_SourceTypeOption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "https://x/s", core.SourceTypeScraper, 1)
	api := f.seed(t, "https://x/api", core.SourceTypeAPI, 1)

	res, err := f.reconciler.DetectOrphans(ctx, nil, Options{SourceType: core.SourceTypeAPI, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, api.ID, res.Documents[0].ID)

	_, err = f.reconciler.DetectOrphans(ctx, nil, Options{SourceType: "rss"})
	assert.ErrorIs(t, err, core.ErrInvalidSourceType)
}
