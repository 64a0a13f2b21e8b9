// Package chunker packs extracted content units into bounded, overlapping
// chunks. Chunk positions are assigned 0..n-1 across a whole ingestion run
// and are the positions the tenant's vector index encodes.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/querysafe/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// ErrInvalidChunkSize indicates a non-positive size or an overlap that does
// not fit inside a chunk.
var ErrInvalidChunkSize = errors.New("invalid chunk size")

// Boundaries tried in order when a unit must be cut.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits content units with a recursive character splitter.
type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return fmt.Errorf("%w: size %d", ErrInvalidChunkSize, size)
		}
		c.size = size
		return nil
	}
}

// WithChunkOverlap sets how many runes adjacent chunks may share.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return fmt.Errorf("%w: overlap %d", ErrInvalidChunkSize, overlap)
		}
		c.overlap = overlap
		return nil
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.overlap >= c.size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkSize, c.overlap, c.size)
	}

	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators(separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	return c, nil
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits units, in order, into chunks for tenant. A chunk never spans
// two units. Identical input always yields identical output.
func (c *Chunker) Chunk(tenant core.TenantID, units []core.ContentUnit) ([]core.Chunk, error) {
	var chunks []core.Chunk
	for _, unit := range units {
		if strings.TrimSpace(unit.Text) == "" {
			continue
		}

		parts, err := c.splitter.SplitText(unit.Text)
		if err != nil {
			return nil, fmt.Errorf("split unit %d of document %d: %w", unit.Sequence, unit.DocumentId, err)
		}
		for _, part := range parts {
			text := strings.TrimSpace(part)
			if text == "" {
				continue
			}
			chunks = append(chunks, core.Chunk{
				Tenant:     tenant,
				Position:   len(chunks),
				DocumentId: unit.DocumentId,
				Text:       text,
			})
		}
	}
	return chunks, nil
}

// Texts returns the text of each chunk in position order.
func Texts(chunks []core.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
