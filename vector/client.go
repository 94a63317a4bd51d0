package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/kbingest/chunking"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/retry"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxAttempts is the number of attempts per operation.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the delay before the first retry; it doubles each time.
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultSearchK is used when Search is called with k <= 0.
	DefaultSearchK = 5
)

// DeleteResult reports the outcome of DeleteChunks.
type DeleteResult struct {
	DeletedCount int
}

// SearchHit is one ranked result of Search.
type SearchHit struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// Stats describes the index as seen by the client.
type Stats struct {
	Connected bool
	Count     int
}

// Client is the retrying front end to an Index used by the ingestion side.
// It is safe for concurrent use.
type Client struct {
	index       Index
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithMaxAttempts sets how many times an operation is tried.
// Default is DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(c *Client) error {
		if n <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

// WithBaseDelay sets the first retry delay.
// Default is DefaultBaseDelay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			d = 0
		}
		c.baseDelay = d
		return nil
	}
}

// WithRateLimit caps index calls, retries included, at perSecond with the
// given burst. A non-positive perSecond leaves calls unthrottled.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) error {
		if perSecond <= 0 {
			c.limiter = nil
			return nil
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient wraps index with retry and error mapping.
func NewClient(index Index, opts ...Option) (*Client, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}

	c := &Client{
		index:       index,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "vector-client")
	return c, nil
}

func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	attempt := fn
	if c.limiter != nil {
		attempt = func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			return fn()
		}
	}
	err := retry.If(ctx, attempt, Retryable, c.maxAttempts, c.baseDelay)
	if err == nil {
		return nil
	}
	kind := Classify(err)
	c.logger.Debug("vector operation failed", "op", op, "kind", kind.String(), "error", err)
	if kind == KindTooLarge {
		return fmt.Errorf("%s: %w: %w", op, chunking.ErrChunkRejected, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// AddDocuments writes chunks to the index. A chunk refused as too large
// yields an error matching chunking.ErrChunkRejected.
func (c *Client) AddDocuments(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]Record, len(chunks))
	for i, ch := range chunks {
		records[i] = Record{ID: ch.ID, Content: ch.Content, Metadata: ch.Metadata}
	}
	return c.do(ctx, "add", func() error {
		return c.index.Add(ctx, records)
	})
}

// DeleteChunks removes chunks by ID. An empty ID list is a no-op.
func (c *Client) DeleteChunks(ctx context.Context, ids []string) (*DeleteResult, error) {
	if len(ids) == 0 {
		return &DeleteResult{}, nil
	}
	var deleted int
	err := c.do(ctx, "delete", func() error {
		n, err := c.index.Delete(ctx, ids)
		deleted = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: deleted}, nil
}

// Search returns up to k chunks closest to query, nearest first.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = DefaultSearchK
	}
	var res *QueryResult
	err := c.do(ctx, "query", func() error {
		r, err := c.index.Query(ctx, query, k)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	hits := make([]SearchHit, 0, len(res.IDs))
	for i, id := range res.IDs {
		hit := SearchHit{ID: id}
		if i < len(res.Documents) {
			hit.Content = res.Documents[i]
		}
		if i < len(res.Metadatas) {
			hit.Metadata = res.Metadatas[i]
		}
		if i < len(res.Distances) {
			hit.Distance = res.Distances[i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Stats reports the record count. A failing index reports Connected false.
func (c *Client) Stats(ctx context.Context) Stats {
	var n int
	err := c.do(ctx, "count", func() error {
		var err error
		n, err = c.index.Count(ctx)
		return err
	})
	if err != nil {
		c.logger.Warn("vector index unreachable", "error", err)
		return Stats{}
	}
	return Stats{Connected: true, Count: n}
}

// Connected reports whether the index currently answers.
func (c *Client) Connected(ctx context.Context) bool {
	return c.Stats(ctx).Connected
}
