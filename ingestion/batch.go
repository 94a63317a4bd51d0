package ingestion

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/kbingest/core"
)

// IngestBatch ingests every request through the worker pool. Each item's
// outcome, including unexpected errors and panics, lands in its own detail
// slot; one failure never aborts its siblings.
func (p *Pipeline) IngestBatch(ctx context.Context, reqs []IngestRequest) *BatchResult {
	result := &BatchResult{
		Total:   len(reqs),
		Details: make([]*IngestResult, len(reqs)),
	}

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, len(reqs), p.progressEvery)
		tracker.Start()
	}

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			result.Details[i] = p.ingestIsolated(ctx, req)
			if tracker != nil {
				tracker.Increment(1)
			}
		}
		// Submit blocks while every worker is busy.
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			result.Details[i] = failed(fmt.Errorf("submitting document %d: %w", i, err))
		}
	}
	wg.Wait()
	if tracker != nil {
		tracker.Finish()
	}

	for _, d := range result.Details {
		switch d.Status {
		case core.IngestIndexed:
			result.Successful++
		case core.IngestDuplicateRejected:
			result.Duplicates++
		default:
			result.Failed++
		}
	}

	p.logger.Info("batch complete", "total", result.Total, "successful", result.Successful,
		"duplicates", result.Duplicates, "failed", result.Failed)
	return result
}

// ingestIsolated runs Ingest and folds errors and panics into a failed result.
func (p *Pipeline) ingestIsolated(ctx context.Context, req IngestRequest) (res *IngestResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ingest panicked", "panic", r, "source_url", req.SourceURL)
			res = failed(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	res, err := p.Ingest(ctx, req)
	if err != nil {
		p.logger.Error("ingest failed", "error", err, "source_url", req.SourceURL)
		return failed(err)
	}
	return res
}
