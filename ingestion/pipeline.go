package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbingest/chunking"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/retry"
	"github.com/poiesic/kbingest/storage"
)

// DefaultConcurrency is the number of documents IngestBatch runs at once.
const DefaultConcurrency = 15

// DefaultRaceBackoff is the wait before each commit retry after a lost race.
var DefaultRaceBackoff = []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}

// Pipeline ingests documents into a repository and a chunk index.
// It is safe for concurrent use.
type Pipeline struct {
	repo          storage.DocumentRepository
	index         ChunkIndex
	pool          *ants.Pool
	ladder        chunking.Ladder
	raceBackoff   []time.Duration
	progress      io.Writer
	progressEvery int
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConcurrency sets how many documents IngestBatch processes at once.
// Default is DefaultConcurrency.
func WithConcurrency(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLadder sets the chunking tiers, largest first.
// Default is chunking.DefaultLadder.
func WithLadder(ladder chunking.Ladder) Option {
	return func(p *Pipeline) error {
		if err := ladder.Validate(); err != nil {
			return err
		}
		p.ladder = slices.Clone(ladder)
		return nil
	}
}

// WithRaceBackoff sets the delays between commit retries after a lost race.
// The commit is tried len(delays)+1 times. Default is DefaultRaceBackoff.
func WithRaceBackoff(delays ...time.Duration) Option {
	return func(p *Pipeline) error {
		p.raceBackoff = slices.Clone(delays)
		return nil
	}
}

// WithProgress reports IngestBatch progress to w every interval documents.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		if interval < 1 {
			interval = 1
		}
		p.progress = w
		p.progressEvery = interval
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
// Call Release when done to stop the worker pool.
func NewPipeline(repo storage.DocumentRepository, index ChunkIndex, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	p := &Pipeline{
		repo:        repo,
		index:       index,
		ladder:      chunking.DefaultLadder,
		raceBackoff: DefaultRaceBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.pool == nil {
		pool, err := ants.NewPool(DefaultConcurrency)
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Release stops the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Ingest processes one document. Validation, duplicate, chunking and vector
// index outcomes are reported in the result; the returned error is non-nil
// only when the repository fails outside the race protocol.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = core.SourceTypeManualUpload
	}
	if err := core.ValidateBody(req.Body); err != nil {
		return failed(err), nil
	}
	if err := core.ValidateSourceType(sourceType); err != nil {
		return failed(err), nil
	}

	text := core.Normalize(req.Body)
	hash, err := core.Hash(text)
	if err != nil {
		return failed(err), nil
	}
	logger := p.logger.With("hash", hash[:12], "source_url", req.SourceURL)

	existing, err := p.repo.FindByHash(ctx, hash)
	switch {
	case err == nil:
		logger.Debug("duplicate content", "document_id", existing.ID)
		return duplicate(existing.ID), nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("checking content hash: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	titleGenerated := title == ""
	if titleGenerated {
		title = core.GenerateTitle(text)
	}

	now := storage.Now()
	docID := core.NewDocumentID()
	src := chunking.ChunkSource{
		DocumentID: docID,
		Name:       title,
		SourceType: sourceType,
		SourceURL:  req.SourceURL,
		UploadTime: now,
		Category:   req.Category,
		Metadata:   req.Metadata,
	}

	chunks, tier, attempted, err := p.indexChunks(ctx, text, src)
	if err != nil {
		p.discard(ctx, attempted)
		logger.Warn("indexing failed", "error", err)
		return failed(err), nil
	}

	doc := &core.Document{
		ID:          docID,
		Title:       title,
		ContentHash: hash,
		SourceType:  sourceType,
		SourceURL:   req.SourceURL,
		Status:      core.StatusIndexed,
		ChunkRefs:   chunkIDs(chunks),
		ChunksCount: len(chunks),
		TotalChars:  utf8.RuneCountInString(text),
		Metadata:    documentMetadata(req, tier, titleGenerated, now),
		CreatedAt:   now,
	}

	outcome, err := p.commit(ctx, doc)
	if err != nil || outcome.Status != core.IngestIndexed {
		p.discard(ctx, doc.ChunkRefs)
	}
	if err != nil {
		return nil, err
	}
	if outcome.Status == core.IngestIndexed {
		outcome.ChunksCount = doc.ChunksCount
		outcome.TotalLength = doc.TotalChars
		outcome.Strategy = tier.Name
		logger.Info("document indexed", "document_id", doc.ID, "chunks", doc.ChunksCount,
			"strategy", tier.Name, "replaced", outcome.ReplacedID)
	}
	return outcome, nil
}

// indexChunks chunks text down the ladder until the index accepts every chunk.
// On failure attempted lists every chunk ID that may have reached the index.
func (p *Pipeline) indexChunks(ctx context.Context, text string, src chunking.ChunkSource) ([]core.Chunk, chunking.Tier, []string, error) {
	var (
		chunks []core.Chunk
		most   int
	)
	tier, err := chunking.WithFallback(p.ladder, text, func(tier chunking.Tier, pieces []string) error {
		chunks = chunking.Chunks(src, pieces)
		most = max(most, len(chunks))
		err := p.index.AddDocuments(ctx, chunks)
		if err != nil {
			p.logger.Debug("tier rejected", "tier", tier.Name, "chunks", len(chunks), "error", err)
		}
		return err
	})
	if err != nil {
		return nil, tier, chunkRange(src.DocumentID, 0, most), err
	}

	// Chunk IDs are sequential per document, so a rejected larger tier can
	// only leave IDs beyond the accepted tier's count.
	p.discard(ctx, chunkRange(src.DocumentID, len(chunks), most))
	return chunks, tier, nil, nil
}

func chunkRange(documentID string, from, to int) []string {
	var ids []string
	for i := from; i < to; i++ {
		ids = append(ids, core.ChunkID(documentID, i))
	}
	return ids
}

// commit records doc, replacing a stale document at the same source URL.
func (p *Pipeline) commit(ctx context.Context, doc *core.Document) (*IngestResult, error) {
	var outcome *IngestResult

	attempt := func() error {
		outcome = nil
		return p.repo.WithTransaction(ctx, func(ctx context.Context) error {
			other, err := p.repo.FindByHash(ctx, doc.ContentHash)
			switch {
			case err == nil:
				outcome = duplicate(other.ID)
				return nil
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}

			var replacedID string
			if doc.SourceURL != "" {
				stale, err := p.repo.FindBySourceURL(ctx, doc.SourceURL)
				switch {
				case err == nil:
					if _, err := p.index.DeleteChunks(ctx, stale.ChunkRefs); err != nil {
						return fmt.Errorf("%w: document %s: %w", ErrStaleChunks, stale.ID, err)
					}
					err := p.repo.DeleteDocument(ctx, stale.ID)
					if errors.Is(err, storage.ErrNotFound) {
						// A concurrent writer removed the row after we read it.
						return fmt.Errorf("%w: document %s deleted concurrently", storage.ErrConflict, stale.ID)
					}
					if err != nil {
						return err
					}
					replacedID = stale.ID
				case !errors.Is(err, storage.ErrNotFound):
					return err
				}
			}

			if _, err := p.repo.CreateDocument(ctx, doc); err != nil {
				return err
			}
			outcome = &IngestResult{
				Success:    true,
				Status:     core.IngestIndexed,
				DocumentID: doc.ID,
				ReplacedID: replacedID,
			}
			return nil
		})
	}

	lostRace := func(err error) bool {
		return storage.IsRace(err) && !errors.Is(err, ErrStaleChunks)
	}
	err := retry.WithDelays(ctx, attempt, lostRace, p.raceBackoff)
	switch {
	case err == nil:
		return outcome, nil
	case errors.Is(err, ErrStaleChunks):
		return failed(err), nil
	case lostRace(err):
		return p.resolveRace(ctx, doc, err)
	default:
		return nil, fmt.Errorf("recording document: %w", err)
	}
}

// resolveRace looks for the document that won a race commit retries could
// not get past.
func (p *Pipeline) resolveRace(ctx context.Context, doc *core.Document, raceErr error) (*IngestResult, error) {
	var (
		winner *core.Document
		err    error
	)
	if doc.SourceURL != "" {
		winner, err = p.repo.FindBySourceURL(ctx, doc.SourceURL)
	} else {
		winner, err = p.repo.FindByHash(ctx, doc.ContentHash)
	}
	if err == nil {
		p.logger.Debug("race lost to concurrent writer", "document_id", winner.ID)
		return duplicate(winner.ID), nil
	}
	return nil, fmt.Errorf("%w: %w", ErrRaceUnresolved, errors.Join(raceErr, err))
}

// discard deletes chunks of a document that will not be recorded.
// Failures are logged: the document never references them.
func (p *Pipeline) discard(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if _, err := p.index.DeleteChunks(context.WithoutCancel(ctx), ids); err != nil {
		p.logger.Warn("discarding chunks failed", "chunks", len(ids), "error", err)
	}
}

// Delete removes a document: its chunks first, then its record.
// Returns the number of chunks the index removed.
func (p *Pipeline) Delete(ctx context.Context, id string) (int, error) {
	doc, err := p.repo.GetDocument(ctx, id)
	if err != nil {
		return 0, err
	}
	res, err := p.index.DeleteChunks(ctx, doc.ChunkRefs)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of %s: %w", id, err)
	}
	if err := p.repo.DeleteDocument(ctx, id); err != nil {
		return res.DeletedCount, err
	}
	p.logger.Info("document deleted", "document_id", id, "chunks", res.DeletedCount)
	return res.DeletedCount, nil
}

func chunkIDs(chunks []core.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids
}

func documentMetadata(req IngestRequest, tier chunking.Tier, titleGenerated bool, now time.Time) map[string]string {
	md := maps.Clone(req.Metadata)
	if md == nil {
		md = make(map[string]string)
	}
	md[core.MetaIngestedAt] = now.Format(time.RFC3339)
	md[core.MetaChunkStrategy] = tier.Name
	if titleGenerated {
		md[core.MetaTitleGenerated] = strconv.FormatBool(true)
	}
	if !req.Date.IsZero() {
		md[core.MetaSourceDate] = req.Date.UTC().Format(time.RFC3339)
	}
	if req.Category != "" {
		md[core.MetaCategory] = req.Category
	}
	return md
}
