package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poiesic/querysafe/ai/mock"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
	"github.com/poiesic/querysafe/snapshot"
	"github.com/poiesic/querysafe/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRetriever(t *testing.T) (*Retriever, *snapshot.Registry, *mock.MockEmbedder) {
	t.Helper()
	artifacts, err := disk.NewArtifactStore(t.TempDir())
	require.NoError(t, err)
	registry, err := snapshot.NewRegistry(artifacts, snapshot.WithLogger(quietLogger()))
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	r, err := NewRetriever(registry, embedder, WithLogger(quietLogger()))
	require.NoError(t, err)
	return r, registry, embedder
}

// buildSnapshot embeds texts the way ingestion does.
func buildSnapshot(t *testing.T, embedder *mock.MockEmbedder, texts []string, generation uint64) *snapshot.Snapshot {
	t.Helper()
	vectors, err := embedder.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	for i := range vectors {
		vectors[i] = index.Normalize(vectors[i])
	}
	idx, err := index.Build(vectors, embedder.Model(), generation)
	require.NoError(t, err)
	snap, err := snapshot.New(texts, idx)
	require.NoError(t, err)
	return snap
}

func generationTexts(gen, n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("g%d chunk %d", gen, i)
	}
	return texts
}

type recordingMonitor struct {
	noopMonitor
	dropped []int
	gen     uint64
}

func (m *recordingMonitor) SnapshotTaken(generation uint64, _ int) { m.gen = generation }
func (m *recordingMonitor) Dropped(position int)                  { m.dropped = append(m.dropped, position) }

func TestNewRetriever_Validation(t *testing.T) {
	_, err := NewRetriever(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrRegistryRequired)

	_, registry, _ := newTestRetriever(t)
	_, err = NewRetriever(registry, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestRetrieve_NotIndexed(t *testing.T) {
	r, _, embedder := newTestRetriever(t)

	_, err := r.Retrieve(context.Background(), "T2", "hello", 0)
	var notIndexed *core.NotIndexedError
	require.ErrorAs(t, err, &notIndexed)
	assert.Equal(t, core.TenantID("T2"), notIndexed.Tenant)
	assert.True(t, core.IsNotIndexed(err))
	assert.Equal(t, 0, embedder.CallCount())
}

func TestRetrieve_ModelMismatchIsNotIndexed(t *testing.T) {
	r, registry, _ := newTestRetriever(t)
	other := mock.NewMockEmbedder()
	other.ModelTag = "older-model"
	registry.Swap("acme", buildSnapshot(t, other, generationTexts(1, 3), 1))

	_, err := r.Retrieve(context.Background(), "acme", "anything", 3)
	assert.True(t, core.IsNotIndexed(err))
	assert.Contains(t, err.Error(), "older-model")
}

func TestRetrieve_RanksBestFirst(t *testing.T) {
	r, registry, embedder := newTestRetriever(t)
	texts := generationTexts(1, 10)
	registry.Swap("acme", buildSnapshot(t, embedder, texts, 1))

	result, err := r.Retrieve(context.Background(), "acme", texts[4], 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Generation)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, texts[4], result.Chunks[0].Text)
	assert.Equal(t, 4, result.Chunks[0].Position)
	assert.InDelta(t, 1.0, result.Chunks[0].Score, 1e-5)
	for i := 1; i < len(result.Chunks); i++ {
		assert.GreaterOrEqual(t, result.Chunks[i-1].Score, result.Chunks[i].Score)
	}
}

func TestRetrieve_DefaultK(t *testing.T) {
	r, registry, embedder := newTestRetriever(t)
	registry.Swap("acme", buildSnapshot(t, embedder, generationTexts(1, 12), 1))

	result, err := r.Retrieve(context.Background(), "acme", "query", 0)
	require.NoError(t, err)
	assert.Len(t, result.Chunks, DefaultK)
	assert.Len(t, result.Texts(), DefaultK)
}

func TestRetrieve_DropsOutOfRangePositions(t *testing.T) {
	r, registry, embedder := newTestRetriever(t)
	full := buildSnapshot(t, embedder, generationTexts(1, 4), 1)
	// A snapshot whose chunk list is shorter than its index.
	registry.Swap("acme", &snapshot.Snapshot{Generation: 1, Chunks: full.Chunks[:2], Index: full.Index})

	monitor := &recordingMonitor{}
	result, err := r.RetrieveWithMonitor(context.Background(), "acme", "query", 4, monitor)
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 2)
	assert.ElementsMatch(t, []int{2, 3}, monitor.dropped)
	assert.Equal(t, uint64(1), monitor.gen)
}

func TestRetrieve_Validation(t *testing.T) {
	r, _, _ := newTestRetriever(t)

	_, err := r.Retrieve(context.Background(), "acme", "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = r.Retrieve(context.Background(), "", "query", 5)
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}

func TestRetrieve_OversizedQuery(t *testing.T) {
	r, registry, embedder := newTestRetriever(t)
	registry.Swap("acme", buildSnapshot(t, embedder, generationTexts(1, 3), 1))
	calls := embedder.CallCount()

	_, err := r.Retrieve(context.Background(), "acme", strings.Repeat("x", 100000), 5)
	var embedErr *core.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.ErrorIs(t, err, core.ErrInputTooLong)
	assert.Equal(t, calls, embedder.CallCount())
}

func TestRetrieve_CustomInputLimit(t *testing.T) {
	_, registry, embedder := newTestRetriever(t)
	registry.Swap("acme", buildSnapshot(t, embedder, generationTexts(1, 3), 1))
	r, err := NewRetriever(registry, embedder, WithLogger(quietLogger()), WithMaxInputChars(10))
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "acme", "ünïcode 10", 1)
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), "acme", "eleven runes", 1)
	assert.ErrorIs(t, err, core.ErrInputTooLong)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	r, registry, embedder := newTestRetriever(t)
	registry.Swap("acme", buildSnapshot(t, embedder, generationTexts(1, 2), 1))
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("service down")
	}

	_, err := r.Retrieve(context.Background(), "acme", "query", 1)
	var embedErr *core.EmbeddingError
	assert.ErrorAs(t, err, &embedErr)
}

func TestRetrieve_ConsistentUnderConcurrentSwaps(t *testing.T) {
	r, registry, embedder := newTestRetriever(t)
	snaps := []*snapshot.Snapshot{
		buildSnapshot(t, embedder, generationTexts(1, 6), 1),
		buildSnapshot(t, embedder, generationTexts(2, 9), 2),
	}
	registry.Swap("acme", snaps[0])

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; !stop.Load(); i++ {
			registry.Swap("acme", snaps[i%2])
		}
	}()

	for i := 0; i < 500; i++ {
		result, err := r.Retrieve(context.Background(), "acme", fmt.Sprintf("question %d", i), 5)
		require.NoError(t, err)
		prefix := fmt.Sprintf("g%d ", result.Generation)
		for _, c := range result.Chunks {
			assert.True(t, strings.HasPrefix(c.Text, prefix), "chunk %q not from generation %d", c.Text, result.Generation)
		}
	}
	stop.Store(true)
	wg.Wait()
}
