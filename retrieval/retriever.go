package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
	"github.com/poiesic/querysafe/snapshot"
)

// DefaultK is the number of chunks returned when the caller does not ask
// for a specific count.
const DefaultK = 5

// Result is a ranked retrieval drawn from a single generation.
type Result struct {
	Generation uint64
	Chunks     []core.RetrievedChunk // best first
}

// Texts returns the retrieved chunk texts, best first.
func (r *Result) Texts() []string {
	texts := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		texts[i] = c.Text
	}
	return texts
}

// Retriever answers nearest-neighbour queries against published generations.
type Retriever struct {
	registry      *snapshot.Registry
	embedder      ai.Embedder
	maxInputChars int
	logger        *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithMaxInputChars sets the longest query, in runes, sent to the embedder.
// Zero or less disables the limit.
func WithMaxInputChars(n int) Option {
	return func(r *Retriever) error {
		r.maxInputChars = n
		return nil
	}
}

// NewRetriever creates a Retriever. embedder must be the embedder ingestion
// builds indexes with.
func NewRetriever(registry *snapshot.Registry, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		registry:      registry,
		embedder:      embedder,
		maxInputChars: ai.DefaultMaxInputChars,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retrieval")
	return r, nil
}

// Retrieve returns up to k chunks of tenant closest to query. k <= 0 means
// DefaultK. A query longer than the input limit fails with
// *core.EmbeddingError wrapping core.ErrInputTooLong. Fails with *core.NotIndexedError when the tenant has no
// published generation or its index was built by another embedding model.
func (r *Retriever) Retrieve(ctx context.Context, tenant core.TenantID, query string, k int) (*Result, error) {
	return r.RetrieveWithMonitor(ctx, tenant, query, k, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, tenant core.TenantID, query string, k int, monitor Monitor) (*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := core.ValidateEmbeddingInput(query, r.maxInputChars); err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}
	if k <= 0 {
		k = DefaultK
	}
	monitor.Start(tenant, query)

	// The only read of shared state. Everything below uses snap.
	snap := r.registry.Current(ctx, tenant)
	if snap == nil {
		return nil, &core.NotIndexedError{Tenant: tenant, Reason: "no published generation"}
	}
	if snap.ModelTag() != r.embedder.Model() {
		return nil, &core.NotIndexedError{
			Tenant: tenant,
			Reason: fmt.Sprintf("%v: index built with %q, embedder is %q", core.ErrModelMismatch, snap.ModelTag(), r.embedder.Model()),
		}
	}
	monitor.SnapshotTaken(snap.Generation, len(snap.Chunks))

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}

	hits, err := snap.Index.Search(index.Normalize(vector), k)
	if err != nil {
		if errors.Is(err, index.ErrDimension) {
			return nil, &core.NotIndexedError{Tenant: tenant, Reason: err.Error()}
		}
		return nil, err
	}
	monitor.AfterSearch(hits)

	result := &Result{
		Generation: snap.Generation,
		Chunks:     make([]core.RetrievedChunk, 0, len(hits)),
	}
	for _, hit := range hits {
		if hit.Position < 0 || hit.Position >= len(snap.Chunks) {
			r.logger.Warn("dropping out of range hit", "tenant", tenant, "position", hit.Position, "chunks", len(snap.Chunks))
			monitor.Dropped(hit.Position)
			continue
		}
		result.Chunks = append(result.Chunks, core.RetrievedChunk{
			Position: hit.Position,
			Text:     snap.Chunks[hit.Position],
			Score:    hit.Score,
		})
	}

	r.logger.Debug("retrieved chunks", "tenant", tenant, "generation", snap.Generation, "hits", len(result.Chunks))
	monitor.Finish(result)
	return result, nil
}
