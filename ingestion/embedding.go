package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
)

// embeddingProcessor embeds the chunks of a run in batches. Output vectors
// are unit length and in chunk order.
type embeddingProcessor struct {
	embedder      ai.Embedder
	batchSize     int
	maxInputChars int
	maxAttempts   int
	baseDelay     time.Duration
}

var _ processor = (*embeddingProcessor)(nil)

func (ep *embeddingProcessor) name() string { return "embedding" }

func (ep *embeddingProcessor) process(ctx context.Context, r *run) error {
	texts := r.texts()
	for i, text := range texts {
		if err := ep.validate(text); err != nil {
			return &core.EmbeddingError{Err: fmt.Errorf("chunk %d: %w", i, err)}
		}
	}

	vectors := make([][]float32, 0, len(texts))
	dim := 0
	for start := 0; start < len(texts); start += ep.batchSize {
		end := min(start+ep.batchSize, len(texts))
		batch := texts[start:end]

		var embeddings [][]float32
		err := retryWithBackoff(ctx, r.logger, func() error {
			var err error
			embeddings, err = ep.embedder.EmbedTexts(ctx, batch)
			return err
		}, ep.maxAttempts, ep.baseDelay)
		if err != nil {
			r.logger.Error("error generating embeddings", "batch_start", start, "err", err)
			return &core.EmbeddingError{Err: err}
		}
		if len(embeddings) != len(batch) {
			return &core.EmbeddingError{Err: fmt.Errorf("embedding result mismatch. expected %d, received %d", len(batch), len(embeddings))}
		}

		for i, v := range embeddings {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return &core.EmbeddingError{Err: fmt.Errorf("%w: chunk %d has %d dimensions, want %d",
					core.ErrDimensionMismatch, start+i, len(v), dim)}
			}
			vectors = append(vectors, index.Normalize(v))
		}
	}

	r.vectors = vectors
	r.logger.Debug("embedded chunks", "chunks", len(vectors), "dimension", dim)
	return nil
}

func (ep *embeddingProcessor) validate(text string) error {
	return core.ValidateEmbeddingInput(text, ep.maxInputChars)
}
