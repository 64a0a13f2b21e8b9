package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/querysafe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(doc core.ID, seq int, text string) core.ContentUnit {
	return core.ContentUnit{Tenant: "acme", DocumentId: doc, Sequence: seq, Source: core.SourceText, Text: text}
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog number ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(". ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(WithChunkSize(0))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = New(WithChunkOverlap(-1))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = New(WithChunkSize(100), WithChunkOverlap(100))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultChunkOverlap, c.Overlap())
}

func TestChunk_PositionsAreContiguous(t *testing.T) {
	c, err := New(WithChunkSize(200), WithChunkOverlap(20))
	require.NoError(t, err)

	units := []core.ContentUnit{
		unit(1, 0, longText(30)),
		unit(1, 1, "   \n\t "),
		unit(2, 0, "A short second document."),
	}

	chunks, err := c.Chunk("acme", units)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, core.TenantID("acme"), ch.Tenant)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 200)
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, core.ID(2), last.DocumentId)
	assert.Equal(t, "A short second document.", last.Text)
}

func TestChunk_Deterministic(t *testing.T) {
	c, err := New(WithChunkSize(150), WithChunkOverlap(30))
	require.NoError(t, err)

	units := []core.ContentUnit{unit(1, 0, longText(40)), unit(2, 0, longText(12))}

	first, err := c.Chunk("acme", units)
	require.NoError(t, err)
	second, err := c.Chunk("acme", units)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunk_SmallUnitsStayWhole(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	chunks, err := c.Chunk("acme", []core.ContentUnit{
		unit(1, 0, "Page one."),
		unit(1, 1, "Page two."),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Page one.", "Page two."}, Texts(chunks))
}

func TestChunk_Empty(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	chunks, err := c.Chunk("acme", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
