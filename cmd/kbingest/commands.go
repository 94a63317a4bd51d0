package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/kbingest"
	"github.com/poiesic/kbingest/config"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/reconcile"
	"github.com/urfave/cli/v2"
)

// openKnowledgeBase loads the config named by --config and opens the stores.
func openKnowledgeBase(c *cli.Context) (*kbingest.KnowledgeBase, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	kb, err := kbingest.Open(c.Context, cfg, kbingest.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return kb, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("ingest takes exactly one FILE argument")
	}
	body, err := readBody(c.Args().First(), c.App.Reader)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	req := ingestion.IngestRequest{
		Body:       body,
		Title:      c.String("title"),
		SourceURL:  c.String("url"),
		SourceType: core.SourceType(c.String("source-type")),
		Category:   c.String("category"),
	}
	if ts := c.Timestamp("date"); ts != nil {
		req.Date = *ts
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	pipeline, err := kb.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	res, err := pipeline.Ingest(c.Context, req)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if err := printJSON(c.App.Writer, res); err != nil {
		return err
	}
	if res.Status == core.IngestFailed {
		return cli.Exit("", 1)
	}
	return nil
}

func batchCommand(c *cli.Context) error {
	reqs, err := readManifest(c.String("manifest"))
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	opts := []ingestion.Option{ingestion.WithProgress(c.App.ErrWriter, c.Int("report-interval"))}
	if n := c.Int("concurrency"); n > 0 {
		opts = append(opts, ingestion.WithConcurrency(n))
	}
	pipeline, err := kb.NewIngestionPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	res := pipeline.IngestBatch(c.Context, reqs)
	fmt.Fprintf(c.App.ErrWriter, "Batch complete: %d total, %d indexed, %d duplicates, %d failed\n",
		res.Total, res.Successful, res.Duplicates, res.Failed)
	return printJSON(c.App.Writer, res)
}

func orphansCommand(c *cli.Context) error {
	f, err := openFile(c.String("urls"))
	if err != nil {
		return err
	}
	urls, err := readURLs(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read urls: %w", err)
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	reconciler, err := kb.NewReconciler()
	if err != nil {
		return err
	}
	res, err := reconciler.DetectOrphans(c.Context, urls, reconcile.Options{
		DryRun:     c.Bool("dry-run"),
		SourceType: core.SourceType(c.String("source-type")),
	})
	if res != nil {
		if perr := printJSON(c.App.Writer, res); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("orphan reconciliation failed: %w", err)
	}
	return nil
}

type statsOutput struct {
	Documents       int            `json:"documents"`
	Chunks          int            `json:"chunks"`
	Chars           int            `json:"chars"`
	ByStatus        map[string]int `json:"by_status"`
	BySourceType    map[string]int `json:"by_source_type"`
	VectorConnected bool           `json:"vector_connected"`
	VectorCount     int            `json:"vector_count"`
}

func statsCommand(c *cli.Context) error {
	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	stats, err := kb.Repository().GetStatistics(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}
	vs := kb.VectorClient().Stats(c.Context)

	out := statsOutput{
		Documents:       stats.TotalDocuments,
		Chunks:          stats.TotalChunks,
		Chars:           stats.TotalChars,
		ByStatus:        make(map[string]int, len(stats.ByStatus)),
		BySourceType:    make(map[string]int, len(stats.BySourceType)),
		VectorConnected: vs.Connected,
		VectorCount:     vs.Count,
	}
	for k, v := range stats.ByStatus {
		out.ByStatus[string(k)] = v
	}
	for k, v := range stats.BySourceType {
		out.BySourceType[string(k)] = v
	}
	return printJSON(c.App.Writer, out)
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("search needs a QUERY")
	}
	query := joinArgs(c.Args().Slice())

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	searcher, err := kb.NewSearcher()
	if err != nil {
		return err
	}
	results, err := searcher.Search(c.Context, query, c.Int("k"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	for i, hit := range results {
		title := "(missing document)"
		if hit.Document != nil {
			title = hit.Document.Title
		}
		fmt.Fprintf(c.App.Writer, "%d: %s [%0.3f] %s\n   %s\n", i, hit.ChunkID, hit.Distance, title, snippet(hit.Content, 160))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("delete takes exactly one document ID")
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	pipeline, err := kb.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	n, err := pipeline.Delete(context.WithoutCancel(c.Context), c.Args().First())
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s (%d chunks)\n", c.Args().First(), n)
	return nil
}
