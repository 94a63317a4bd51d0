package pgvector

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/poiesic/kbingest/ai/mock"
	"github.com/poiesic/kbingest/storage/postgres"
	"github.com/poiesic/kbingest/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForCode(t *testing.T) {
	tests := []struct {
		code string
		want vector.ErrorKind
	}{
		{code: "08006", want: vector.KindTransient},
		{code: "53300", want: vector.KindTransient},
		{code: "57P01", want: vector.KindTransient},
		{code: "54000", want: vector.KindTooLarge},
		{code: "22P02", want: vector.KindPermanent},
		{code: "42P01", want: vector.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, kindForCode(tt.code))
		})
	}
}

func TestClassify(t *testing.T) {
	err := classify("add", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"}))
	assert.Equal(t, vector.KindTransient, vector.Classify(err))

	err = classify("add", &pgconn.PgError{Code: "23502"})
	assert.Equal(t, vector.KindPermanent, vector.Classify(err))

	err = classify("query", fmt.Errorf("dial tcp: connection refused"))
	assert.Equal(t, vector.KindTransient, vector.Classify(err))
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil, mock.NewMockEmbedder(), 64)
	assert.ErrorIs(t, err, ErrDBRequired)
}

func TestIndex_Integration(t *testing.T) {
	dsn := os.Getenv("KBINGEST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KBINGEST_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	db, err := postgres.OpenDB(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	embedder := mock.NewMockEmbedder()
	ix, err := New(ctx, db, embedder, mock.DefaultDimensions, WithTable("chunk_vectors_test"), WithBatchSize(2))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "TRUNCATE chunk_vectors_test")
	require.NoError(t, err)

	records := []vector.Record{
		{ID: "d1_chunk_0", Content: "How to reset a forgotten password", Metadata: map[string]string{"document_id": "d1"}},
		{ID: "d2_chunk_0", Content: "Shipping takes three to five business days"},
		{ID: "d3_chunk_0", Content: "Refunds are issued to the original card"},
	}
	require.NoError(t, ix.Add(ctx, records))
	assert.Equal(t, 2, embedder.CallCount(), "three records in batches of two")

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := ix.Query(ctx, "reset my password", 1)
	require.NoError(t, err)
	require.Len(t, res.IDs, 1)
	assert.Equal(t, "d1_chunk_0", res.IDs[0])
	assert.Equal(t, "d1", res.Metadatas[0]["document_id"])

	deleted, err := ix.Delete(ctx, []string{"d1_chunk_0", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
