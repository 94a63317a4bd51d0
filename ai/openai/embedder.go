package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbingest/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns chunk text and search queries into vectors through an
// OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client embeddings.Embedder
	model  string
	logger *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIToken),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("openai client for %s: %w", config.EmbeddingHost, err)
	}

	// Chunks keep their line structure in the index; only the vector input
	// is flattened.
	client, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	return &Embedder{
		client: client,
		model:  config.EmbeddingModel,
		logger: slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder returns an ai.Embedder backed by config's embedding service.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds a search query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("query embedding failed", "chars", len(text), "error", err)
		return nil, err
	}
	return vec, nil
}

// EmbedTexts embeds a batch of chunks, one vector per input in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("embedding chunks", "count", len(texts))

	vecs, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("chunk embedding failed", "count", len(texts), "error", err)
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d chunks", e.model, len(vecs), len(texts))
	}
	return vecs, nil
}
