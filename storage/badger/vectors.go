package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/vector"
)

// vectorWriteBatch bounds the keys touched by one delete transaction.
const vectorWriteBatch = 500

// VectorIndex implements vector.Index on a BadgerDB backend. Records are
// embedded on write, stored with unit-length vectors and searched by brute
// force cosine similarity.
//
// The index never joins a repository transaction carried by the context:
// chunk storage and document records are separate stores.
type VectorIndex struct {
	backend  *Backend
	embedder ai.Embedder
	limits   vector.Limits
	logger   *slog.Logger
}

var _ vector.Index = (*VectorIndex)(nil)

// VectorOption configures a VectorIndex.
type VectorOption func(*VectorIndex) error

// WithMaxRecordChars sets the content size limit reported as too large.
func WithMaxRecordChars(n int) VectorOption {
	return func(v *VectorIndex) error {
		if n <= 0 {
			return fmt.Errorf("max record chars must be positive, got %d", n)
		}
		v.limits.MaxRecordChars = n
		return nil
	}
}

// WithMaxMetadataKeys sets the metadata key limit.
func WithMaxMetadataKeys(n int) VectorOption {
	return func(v *VectorIndex) error {
		if n <= 0 {
			return fmt.Errorf("max metadata keys must be positive, got %d", n)
		}
		v.limits.MaxMetadataKeys = n
		return nil
	}
}

// WithVectorLogger sets a custom logger.
// Default is slog.Default().
func WithVectorLogger(logger *slog.Logger) VectorOption {
	return func(v *VectorIndex) error {
		if logger == nil {
			logger = slog.Default()
		}
		v.logger = logger
		return nil
	}
}

// NewVectorIndex creates a vector index stored in backend.
func NewVectorIndex(backend *Backend, embedder ai.Embedder, opts ...VectorOption) (*VectorIndex, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	if embedder == nil {
		return nil, vector.ErrEmbedderRequired
	}
	v := &VectorIndex{
		backend:  backend,
		embedder: embedder,
		limits:   vector.DefaultLimits(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	v.logger = v.logger.With("component", "badger-vectors")
	return v, nil
}

type vectorRecord struct {
	id       string
	content  string
	metadata map[string]string
	vector   []float32
}

func marshalVectorRecord(r *vectorRecord) []byte {
	return storage.Encode(func(e *storage.Encoder) {
		e.WriteString(r.id)
		e.WriteString(r.content)
		e.WriteStringMap(r.metadata)
		e.WriteFloat32s(r.vector)
	})
}

func unmarshalVectorRecord(data []byte) (*vectorRecord, error) {
	d := storage.NewDecoder(data)
	r := &vectorRecord{
		id:       d.ReadString(),
		content:  d.ReadString(),
		metadata: d.ReadStringMap(),
		vector:   d.ReadFloat32s(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// Add validates, embeds and stores records.
func (v *VectorIndex) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	if err := v.limits.Check("add", records); err != nil {
		return err
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Content
	}

	vecs, err := v.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return vector.NewError("embed", vector.Classify(err), err)
	}
	if len(vecs) != len(records) {
		return vector.NewError("embed", vector.KindPermanent,
			fmt.Errorf("embedder returned %d vectors for %d records", len(vecs), len(records)))
	}

	wb := v.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for i, r := range records {
		rec := &vectorRecord{
			id:       r.ID,
			content:  r.Content,
			metadata: r.Metadata,
			vector:   normalize(vecs[i]),
		}
		if err := wb.Set(makeVectorKey(r.ID), marshalVectorRecord(rec)); err != nil {
			return vector.NewError("add", vector.KindTransient, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return vector.NewError("add", vector.KindTransient, err)
	}

	v.logger.Debug("stored vector records", "count", len(records))
	return nil
}

// Delete removes records by ID and reports how many existed.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for batch := range slices.Chunk(ids, vectorWriteBatch) {
		n := 0
		err := v.backend.WithTx(func(tx *badger.Txn) error {
			for _, id := range batch {
				key := makeVectorKey(id)
				found, err := exists(tx, key)
				if err != nil {
					return err
				}
				if !found {
					continue
				}
				if err := tx.Delete(key); err != nil {
					return err
				}
				n++
			}
			return nil
		}, true)
		if err != nil {
			kind := vector.KindPermanent
			if errors.Is(err, storage.ErrConflict) {
				kind = vector.KindTransient
			}
			return deleted, vector.NewError("delete", kind, err)
		}
		deleted += n
	}
	return deleted, nil
}

// Query embeds text and returns the k nearest records by cosine distance.
func (v *VectorIndex) Query(ctx context.Context, text string, k int) (*vector.QueryResult, error) {
	q, err := v.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, vector.NewError("embed", vector.Classify(err), err)
	}
	q = normalize(q)

	type scored struct {
		rec *vectorRecord
		sim float32
	}
	var matches []scored

	err = v.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var rec *vectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = unmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(rec.vector) == 0 {
				continue
			}
			matches = append(matches, scored{rec: rec, sim: dotProduct(q, rec.vector)})
		}
		return nil
	}, false)
	if err != nil {
		return nil, vector.NewError("query", vector.KindPermanent, err)
	}

	// Sort by similarity descending
	slices.SortFunc(matches, func(a, b scored) int {
		if a.sim > b.sim {
			return -1
		}
		if a.sim < b.sim {
			return 1
		}
		return 0
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}

	res := &vector.QueryResult{}
	for _, m := range matches {
		res.IDs = append(res.IDs, m.rec.id)
		res.Documents = append(res.Documents, m.rec.content)
		res.Metadatas = append(res.Metadatas, m.rec.metadata)
		res.Distances = append(res.Distances, float64(1-m.sim))
	}
	return res, nil
}

// Count returns the number of stored records.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	if v.backend.IsClosed() {
		return 0, vector.NewError("count", vector.KindPermanent, errors.New("badger database is closed"))
	}
	n := 0
	err := v.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	}, false)
	if err != nil {
		return 0, vector.NewError("count", vector.KindPermanent, err)
	}
	return n, nil
}

// normalize scales v to unit length so a dot product is cosine similarity.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
