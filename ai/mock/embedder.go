package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// DefaultDimension matches all-minilm, the default embedding model.
const DefaultDimension = 384

// MockEmbedder maps each text to a fixed pseudo-random unit vector, so a
// query identical to a chunk scores 1.0 against it.
type MockEmbedder struct {
	// EmbedTextFunc overrides EmbedText when set.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc overrides EmbedTexts when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// ModelTag is returned by Model.
	ModelTag string

	// Dimension of generated vectors. Zero means DefaultDimension.
	Dimension int

	calls atomic.Int64
	texts atomic.Int64
}

// NewMockEmbedder returns an embedder tagged "mock".
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{ModelTag: "mock", Dimension: DefaultDimension}
}

func (m *MockEmbedder) Model() string {
	return m.ModelTag
}

func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	m.texts.Add(1)
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return GenerateDeterministicVector(text, m.dimension()), nil
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	m.texts.Add(int64(len(texts)))
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, GenerateDeterministicVector(text, m.dimension()))
	}
	return out, nil
}

func (m *MockEmbedder) dimension() int {
	if m.Dimension > 0 {
		return m.Dimension
	}
	return DefaultDimension
}

// CallCount counts EmbedText and EmbedTexts invocations.
func (m *MockEmbedder) CallCount() int {
	return int(m.calls.Load())
}

// TextCount counts texts embedded across all calls.
func (m *MockEmbedder) TextCount() int {
	return int(m.texts.Load())
}

// GenerateDeterministicVector derives a unit vector of length dim from an
// FNV-1a seed of text fed through a linear congruential generator.
func GenerateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	state := h.Sum32()

	vector := make([]float32, dim)
	var norm float64
	for i := range vector {
		state = state*1664525 + 1013904223
		v := float32(state%1000)/1000.0 - 0.5
		vector[i] = v
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
