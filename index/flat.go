// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package index provides the exact nearest-neighbour vector index that backs
// retrieval. Position i of the index encodes chunk i of the same generation.
package index

import (
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/querysafe/storage"
)

const formatMagic = "querysafe-flat-v1"

var (
	// ErrEmptyIndex indicates an attempt to build an index from no vectors.
	ErrEmptyIndex = errors.New("index has no vectors")

	// ErrDimension indicates vectors of inconsistent or zero dimension.
	ErrDimension = errors.New("vector dimension mismatch")

	// ErrFormat indicates a serialized index that cannot be decoded.
	ErrFormat = errors.New("unrecognized index format")
)

// Hit is one search result: the position of the vector and its similarity.
type Hit struct {
	Position int
	Score    float32
}

// Flat is an immutable exact inner-product index. With L2-normalised vectors
// the inner product is the cosine similarity.
type Flat struct {
	generation uint64
	modelTag   string
	dim        int
	data       []float32 // size * dim, row major
}

// Build creates an index over vectors. Every vector must have the same,
// non-zero dimension.
func Build(vectors [][]float32, modelTag string, generation uint64) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimension)
	}
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimension, i, len(v), dim)
		}
		data = append(data, v...)
	}
	return &Flat{
		generation: generation,
		modelTag:   modelTag,
		dim:        dim,
		data:       data,
	}, nil
}

// Size returns the number of vectors.
func (f *Flat) Size() int {
	return len(f.data) / f.dim
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int {
	return f.dim
}

// ModelTag returns the embedding model the vectors were produced with.
func (f *Flat) ModelTag() string {
	return f.modelTag
}

// Generation returns the generation the index was built for.
func (f *Flat) Generation() uint64 {
	return f.generation
}

// Vector returns the vector at position i. The slice must not be modified.
func (f *Flat) Vector(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// Search returns up to k hits ordered by descending score. Equal scores are
// ordered by ascending position so results are deterministic.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimension, len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	size := f.Size()
	hits := make([]Hit, size)
	for i := 0; i < size; i++ {
		hits[i] = Hit{Position: i, Score: dotProduct(query, f.Vector(i))}
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return a.Position - b.Position
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Marshal serializes the index.
func (f *Flat) Marshal() []byte {
	return storage.Encode(func(e *storage.Encoder) {
		e.String(formatMagic)
		e.Uint64(f.generation)
		e.String(f.modelTag)
		e.Uint64(uint64(f.dim))
		e.Uint64(uint64(f.Size()))
		for _, v := range f.data {
			e.Float32(v)
		}
	})
}

// Unmarshal decodes an index produced by Marshal.
func Unmarshal(data []byte) (*Flat, error) {
	d := storage.NewDecoder(data)
	if magic := d.String(); d.Err() != nil || magic != formatMagic {
		return nil, ErrFormat
	}
	f := &Flat{
		generation: d.Uint64(),
		modelTag:   d.String(),
		dim:        int(d.Uint64()),
	}
	// Each float takes at least one byte, which bounds the allocation.
	count := d.Len()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if f.dim <= 0 || count == 0 {
		return nil, fmt.Errorf("%w: empty index", ErrFormat)
	}
	total := uint64(count) * uint64(f.dim)
	if total > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %w", ErrFormat, storage.ErrTruncatedData)
	}

	f.data = make([]float32, total)
	for i := range f.data {
		f.data[i] = d.Float32()
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return f, nil
}

// dotProduct calculates the dot product of two vectors of equal length.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
