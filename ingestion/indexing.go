package ingestion

import (
	"context"
	"fmt"

	"github.com/poiesic/querysafe/chunker"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
	"github.com/poiesic/querysafe/snapshot"
	"github.com/poiesic/querysafe/storage"
)

// chunkingProcessor splits the merged units of a run into positioned chunks.
type chunkingProcessor struct {
	chunker *chunker.Chunker
}

var _ processor = (*chunkingProcessor)(nil)

func (cp *chunkingProcessor) name() string { return "chunking" }

func (cp *chunkingProcessor) process(ctx context.Context, r *run) error {
	chunks, err := cp.chunker.Chunk(r.tenant, r.units)
	if err != nil {
		return &core.IndexBuildError{Err: err}
	}
	if len(chunks) == 0 {
		return &core.IndexBuildError{Err: fmt.Errorf("%w: %d documents, %d failed",
			core.ErrNoChunks, len(r.documents), len(r.failed))}
	}
	r.chunks = chunks
	r.logger.Debug("chunked units", "units", len(r.units), "chunks", len(chunks))
	return nil
}

// indexProcessor builds the run's index and persists the new generation's
// artifacts. It does not publish the generation.
type indexProcessor struct {
	artifacts storage.ArtifactStore
	modelTag  string
}

var _ processor = (*indexProcessor)(nil)

func (ip *indexProcessor) name() string { return "indexing" }

func (ip *indexProcessor) process(ctx context.Context, r *run) error {
	idx, err := index.Build(r.vectors, ip.modelTag, r.generation)
	if err != nil {
		return &core.IndexBuildError{Err: err}
	}

	snap, err := snapshot.New(r.texts(), idx)
	if err != nil {
		return &core.IndexBuildError{Err: err}
	}

	if err := ip.artifacts.WriteArtifacts(ctx, r.tenant, snap.Chunks, idx.Marshal()); err != nil {
		return &core.IndexBuildError{Err: fmt.Errorf("persist artifacts: %w", err)}
	}

	r.index = idx
	r.snapshot = snap
	return nil
}
