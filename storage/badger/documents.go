package badger

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
)

// ErrBackendRequired is returned when a backend is not provided.
var ErrBackendRequired = errors.New("badger backend required")

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
//
// Each document is stored under its ID with two index keys, one for the
// content hash and one for the source URL, both pointing back at the ID.
// Writes read the index keys they are about to claim, so two transactions
// racing for the same hash or URL collide under badger's conflict detection.
type DocumentRepository struct {
	backend     *Backend
	ownsBackend bool
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a DocumentRepository over an open backend.
// Closing the repository leaves the backend open.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &DocumentRepository{backend: backend}, nil
}

// NewRepository opens a BadgerDB database at path and returns a repository
// that owns it.
func NewRepository(path string, opts ...BackendOption) (storage.DocumentRepository, error) {
	backend, err := OpenBackend(path, false, opts...)
	if err != nil {
		return nil, err
	}
	return &DocumentRepository{backend: backend, ownsBackend: true}, nil
}

// Close closes the backend if the repository opened it.
func (r *DocumentRepository) Close() error {
	if r.ownsBackend {
		return r.backend.Close()
	}
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// FindByHash returns the document with the given content hash.
func (r *DocumentRepository) FindByHash(ctx context.Context, hash string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readIndexed(tx, makeHashKey(hash))
		return err
	})
	return doc, err
}

// FindBySourceURL returns the document stored under url.
func (r *DocumentRepository) FindBySourceURL(ctx context.Context, url string) (*core.Document, error) {
	if url == "" {
		return nil, storage.ErrNotFound
	}
	var doc *core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readIndexed(tx, makeURLKey(url))
		return err
	})
	return doc, err
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	})
	return doc, err
}

// CreateDocument stores a new document and claims its hash and URL keys.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = core.NewDocumentID()
	}
	now := storage.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.CreatedAt = storage.Timestamp(stored.CreatedAt)
	stored.UpdatedAt = now

	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		claims := [][]byte{makeDocumentKey(stored.ID), makeHashKey(stored.ContentHash)}
		if stored.SourceURL != "" {
			claims = append(claims, makeURLKey(stored.SourceURL))
		}
		for _, key := range claims {
			taken, err := exists(tx, key)
			if err != nil {
				return err
			}
			if taken {
				return storage.ErrDuplicateKey
			}
		}

		if err := tx.Set(makeDocumentKey(stored.ID), storage.MarshalDocument(stored)); err != nil {
			return err
		}
		for _, key := range claims[1:] {
			if err := tx.Set(key, []byte(stored.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// DeleteDocument removes a document and its index keys.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		return deleteDocument(tx, doc)
	})
}

// FindDocumentsNotInURLs returns documents of sourceType whose source URL is
// set and not listed in urls.
func (r *DocumentRepository) FindDocumentsNotInURLs(ctx context.Context, urls []string, sourceType core.SourceType) ([]*core.Document, error) {
	keep := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		keep[u] = struct{}{}
	}

	var docs []*core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		return scanDocuments(tx, func(doc *core.Document) error {
			if doc.SourceType != sourceType || doc.SourceURL == "" {
				return nil
			}
			if _, ok := keep[doc.SourceURL]; !ok {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDocuments(docs)
	return docs, nil
}

// MarkAsOrphaned sets the given documents' status to orphaned.
func (r *DocumentRepository) MarkAsOrphaned(ctx context.Context, ids ...string) (int, error) {
	marked := 0
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		now := storage.Now()
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			doc.Status = core.StatusOrphaned
			doc.UpdatedAt = now
			if err := tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc)); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// DeleteOrphaned removes the given documents and their index keys.
func (r *DocumentRepository) DeleteOrphaned(ctx context.Context, ids ...string) (int, error) {
	deleted := 0
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := deleteDocument(tx, doc); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ListDocuments returns documents matching filter, oldest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context, filter storage.ListFilter) ([]*core.Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var docs []*core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		return scanDocuments(tx, func(doc *core.Document) error {
			if filter.Matches(doc) {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortDocuments(docs)
	if filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}
	return docs, nil
}

// GetStatistics summarizes the stored documents.
func (r *DocumentRepository) GetStatistics(ctx context.Context) (*core.Statistics, error) {
	stats := storage.NewStatistics()
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		return scanDocuments(tx, func(doc *core.Document) error {
			storage.Accumulate(stats, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// readDocument reads a document by ID.
func readDocument(tx *badger.Txn, id string) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

// readIndexed follows an index key to the document it points at.
func readIndexed(tx *badger.Txn, indexKey []byte) (*core.Document, error) {
	item, err := tx.Get(indexKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return readDocument(tx, string(id))
}

// deleteDocument removes doc and the index keys that still point at it.
func deleteDocument(tx *badger.Txn, doc *core.Document) error {
	if err := tx.Delete(makeDocumentKey(doc.ID)); err != nil {
		return err
	}
	indexKeys := [][]byte{makeHashKey(doc.ContentHash)}
	if doc.SourceURL != "" {
		indexKeys = append(indexKeys, makeURLKey(doc.SourceURL))
	}
	for _, key := range indexKeys {
		owner, err := indexOwner(tx, key)
		if err != nil {
			return err
		}
		if owner != doc.ID {
			continue
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// indexOwner returns the document ID an index key points at, or "".
func indexOwner(tx *badger.Txn, key []byte) (string, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	id, err := item.ValueCopy(nil)
	return string(id), err
}

func exists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanDocuments calls fn for every stored document.
func scanDocuments(tx *badger.Txn, fn func(*core.Document) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(documentPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var doc *core.Document
		err := iter.Item().Value(func(val []byte) error {
			var err error
			doc, err = storage.UnmarshalDocument(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func sortDocuments(docs []*core.Document) {
	slices.SortFunc(docs, func(a, b *core.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
