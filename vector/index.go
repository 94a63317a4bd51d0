package vector

import "context"

// Record is one chunk as written to an index.
type Record struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// QueryResult holds the ranked matches of a query as parallel slices: entry i
// of every slice describes the i-th closest record.
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
	Distances []float64
}

// Index is the backend contract of a vector index.
// Implementations must be safe for concurrent use.
type Index interface {
	// Add embeds and stores records. Existing IDs are overwritten.
	Add(ctx context.Context, records []Record) error

	// Delete removes the records with the given IDs and reports how many
	// existed. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) (int, error)

	// Query returns up to k records closest to text, nearest first.
	Query(ctx context.Context, text string, k int) (*QueryResult, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
