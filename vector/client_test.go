package vector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/kbingest/chunking"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/retry"
	"github.com/poiesic/kbingest/vector"
	"github.com/poiesic/kbingest/vector/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, idx vector.Index) *vector.Client {
	t.Helper()
	c, err := vector.NewClient(idx, vector.WithBaseDelay(time.Millisecond))
	require.NoError(t, err)
	return c
}

func testChunks() []core.Chunk {
	return []core.Chunk{
		{ID: "d_chunk_0", DocumentID: "d", Index: 0, Content: "how to reset a password", Metadata: map[string]string{"chunk_index": "0"}},
		{ID: "d_chunk_1", DocumentID: "d", Index: 1, Content: "billing questions", Metadata: map[string]string{"chunk_index": "1"}},
	}
}

func TestNewClient_RequiresIndex(t *testing.T) {
	_, err := vector.NewClient(nil)
	assert.ErrorIs(t, err, vector.ErrIndexRequired)
}

func TestNewClient_InvalidMaxAttempts(t *testing.T) {
	_, err := vector.NewClient(mock.NewIndex(), vector.WithMaxAttempts(0))
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)
}

func TestClient_AddSearchDelete(t *testing.T) {
	idx := mock.NewIndex()
	c := newClient(t, idx)
	ctx := context.Background()

	require.NoError(t, c.AddDocuments(ctx, testChunks()))
	assert.Equal(t, []string{"d_chunk_0", "d_chunk_1"}, idx.IDs())

	hits, err := c.Search(ctx, "reset password", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d_chunk_0", hits[0].ID)
	assert.Equal(t, "how to reset a password", hits[0].Content)
	assert.Equal(t, "0", hits[0].Metadata["chunk_index"])
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)

	res, err := c.DeleteChunks(ctx, []string{"d_chunk_0", "d_chunk_1", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Empty(t, idx.IDs())
}

func TestClient_EmptyInputsSkipIndex(t *testing.T) {
	idx := mock.NewIndex()
	c := newClient(t, idx)

	require.NoError(t, c.AddDocuments(context.Background(), nil))
	res, err := c.DeleteChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedCount)
	assert.Equal(t, 0, idx.AddCalls())
	assert.Equal(t, 0, idx.DeleteCalls())
}

func TestClient_TransientRetried(t *testing.T) {
	idx := mock.NewIndex()
	failures := 2
	idx.AddFunc = func(context.Context, []vector.Record) error {
		if failures > 0 {
			failures--
			return vector.NewError("add", vector.KindTransient, errors.New("connection reset by peer"))
		}
		return nil
	}
	c := newClient(t, idx)

	require.NoError(t, c.AddDocuments(context.Background(), testChunks()))
	assert.Equal(t, 3, idx.AddCalls())
	assert.True(t, idx.Has("d_chunk_1"))
}

func TestClient_TransientExhausted(t *testing.T) {
	idx := mock.NewIndex()
	idx.AddFunc = func(context.Context, []vector.Record) error {
		return errors.New("dial tcp: connection refused")
	}
	c := newClient(t, idx)

	err := c.AddDocuments(context.Background(), testChunks())
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, vector.DefaultMaxAttempts, idx.AddCalls())
}

func TestClient_PermanentNotRetried(t *testing.T) {
	idx := mock.NewIndex()
	idx.AddFunc = func(context.Context, []vector.Record) error {
		return errors.New("401 Unauthorized: invalid api key")
	}
	c := newClient(t, idx)

	err := c.AddDocuments(context.Background(), testChunks())
	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.NotErrorIs(t, err, chunking.ErrChunkRejected)
	assert.Equal(t, vector.KindPermanent, vector.Classify(err))
	assert.Equal(t, 1, idx.AddCalls())
}

func TestClient_TooLargeMapsToChunkRejected(t *testing.T) {
	idx := mock.NewIndex()
	idx.AddFunc = func(context.Context, []vector.Record) error {
		return vector.NewError("add", vector.KindTooLarge, errors.New("record exceeds limit"))
	}
	c := newClient(t, idx)

	err := c.AddDocuments(context.Background(), testChunks())
	assert.ErrorIs(t, err, chunking.ErrChunkRejected)
	assert.Equal(t, 1, idx.AddCalls())
}

func TestClient_Stats(t *testing.T) {
	idx := mock.NewIndex()
	c := newClient(t, idx)
	ctx := context.Background()
	require.NoError(t, c.AddDocuments(ctx, testChunks()))

	assert.Equal(t, vector.Stats{Connected: true, Count: 2}, c.Stats(ctx))
	assert.True(t, c.Connected(ctx))

	idx.CountFunc = func(context.Context) (int, error) {
		return 0, vector.NewError("count", vector.KindPermanent, errors.New("no such collection"))
	}
	assert.Equal(t, vector.Stats{}, c.Stats(ctx))
	assert.False(t, c.Connected(ctx))
}

func TestClient_SearchDefaultK(t *testing.T) {
	idx := mock.NewIndex()
	var gotK int
	idx.QueryFunc = func(_ context.Context, _ string, k int) (*vector.QueryResult, error) {
		gotK = k
		return &vector.QueryResult{}, nil
	}
	c := newClient(t, idx)

	hits, err := c.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, vector.DefaultSearchK, gotK)
}

func TestClient_RateLimit(t *testing.T) {
	idx := mock.NewIndex()
	c, err := vector.NewClient(idx, vector.WithRateLimit(20, 1), vector.WithBaseDelay(time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	for range 3 {
		assert.True(t, c.Connected(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Search(ctx, "anything", 1)
	assert.Error(t, err)
}

func TestClient_RateLimitDisabled(t *testing.T) {
	idx := mock.NewIndex()
	c, err := vector.NewClient(idx, vector.WithRateLimit(0, 0))
	require.NoError(t, err)

	start := time.Now()
	for range 50 {
		assert.True(t, c.Connected(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}
