package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/querysafe/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns chunk and query text into vectors through an
// OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	inner  embeddings.Embedder
	model  string
	logger *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIToken),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding client for %s: %w", config.EmbeddingModel, err)
	}

	// Newlines degrade similarity for most sentence embedding models.
	inner, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embedding client for %s: %w", config.EmbeddingModel, err)
	}

	return &Embedder{
		inner:  inner,
		model:  config.EmbeddingModel,
		logger: slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates an embedder for config.EmbeddingModel.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Model returns the embedding model tag recorded on every index built with
// this embedder.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedText embeds a visitor query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("query embedding failed", "chars", len(text), "err", err)
		return nil, fmt.Errorf("%s: %w", e.model, err)
	}
	return vector, nil
}

// EmbedTexts embeds one batch of chunks. The result is positionally aligned
// with texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("embedding batch", "count", len(texts))

	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("batch embedding failed", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%s: %w", e.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%s: got %d vectors for %d texts", e.model, len(vectors), len(texts))
	}
	return vectors, nil
}
