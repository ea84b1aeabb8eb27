package chunker

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func numbered(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

func TestNewCharacterChunker(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewCharacterChunker(0, -1)
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, 0, c.Overlap())
	})

	t.Run("overlap not smaller than size", func(t *testing.T) {
		c := NewCharacterChunker(100, 150)
		assert.Less(t, c.Overlap(), c.Size())
	})
}

func TestCharacterChunker_Empty(t *testing.T) {
	c := NewCharacterChunker(2000, 500)

	chunks, err := c.Chunk(domain.Document{ID: "d", Content: "   \n"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCharacterChunker_ShortDocument(t *testing.T) {
	c := NewCharacterChunker(2000, 500)
	doc := domain.Document{ID: "d", Path: "a.pdf", Content: numbered(2000)}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 2000, chunks[0].End)
	assert.Equal(t, doc.Content, chunks[0].Text)
	assert.Equal(t, "a.pdf", chunks[0].Source)
	assert.Equal(t, "d", chunks[0].DocumentID)
}

func TestCharacterChunker_FiveThousand(t *testing.T) {
	c := NewCharacterChunker(2000, 500)
	doc := domain.Document{ID: "d", Path: "a.pdf", Content: numbered(5000)}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	spans := [][2]int{{0, 2000}, {1500, 3500}, {3000, 5000}}
	for i, ch := range chunks {
		assert.Equal(t, spans[i][0], ch.Start, "chunk %d start", i)
		assert.Equal(t, spans[i][1], ch.End, "chunk %d end", i)
		assert.Equal(t, i, ch.Index)
	}
}

func TestCharacterChunker_CountFormulaAndOverlap(t *testing.T) {
	const size, overlap = 2000, 500
	c := NewCharacterChunker(size, overlap)

	for _, l := range []int{1, 1999, 2000, 2001, 3500, 3501, 5000, 12345} {
		doc := domain.Document{ID: "d", Path: "x.pdf", Content: numbered(l)}
		chunks, err := c.Chunk(doc)
		require.NoError(t, err)

		want := 1
		if l > size {
			want = int(math.Ceil(float64(l-overlap) / float64(size-overlap)))
		}
		require.Len(t, chunks, want, "length %d", l)

		for i, ch := range chunks {
			assert.LessOrEqual(t, len([]rune(ch.Text)), size)
			if i == 0 {
				continue
			}
			prev := chunks[i-1]
			shared := prev.End - ch.Start
			if i == len(chunks)-1 {
				assert.LessOrEqual(t, shared, overlap)
			} else {
				assert.Equal(t, overlap, shared)
			}
			assert.Equal(t, prev.Text[len(prev.Text)-shared:], ch.Text[:shared])
		}
		assert.Equal(t, l, chunks[len(chunks)-1].End)
	}
}

func TestCharacterChunker_Deterministic(t *testing.T) {
	c := NewCharacterChunker(2000, 500)
	doc := domain.Document{ID: "d", Path: "a.pdf", Content: numbered(4200)}

	first, err := c.Chunk(doc)
	require.NoError(t, err)
	second, err := c.Chunk(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestCharacterChunker_PagesAndRunes(t *testing.T) {
	c := NewCharacterChunker(10, 2)
	content := "ééééé\nüüüüüüüüüü\nzz"
	doc := domain.Document{
		ID:      "d",
		Path:    "p.pdf",
		Content: content,
		Pages:   []domain.PageSpan{{Number: 1, Start: 0}, {Number: 2, Start: 6}, {Number: 3, Start: 17}},
	}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "ééééé\nüüüü", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
	// starts on the separator before page 3
	assert.Equal(t, 16, chunks[2].Start)
	assert.Equal(t, 2, chunks[2].Page)
	assert.Equal(t, "\nzz", chunks[2].Text)
}
