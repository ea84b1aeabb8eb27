package chunker

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 500
)

// CharacterChunker splits text into fixed-size character windows where each
// window shares overlap characters with the previous one.
type CharacterChunker struct {
	size    int
	overlap int
}

func NewCharacterChunker(size, overlap int) *CharacterChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &CharacterChunker{size: size, overlap: overlap}
}

func (c *CharacterChunker) Size() int    { return c.size }
func (c *CharacterChunker) Overlap() int { return c.overlap }

func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	runes := []rune(document.Content)
	n := len(runes)
	step := c.size - c.overlap

	var chunks []domain.Chunk
	for start, idx := 0, 0; ; start, idx = start+step, idx+1 {
		end := start + c.size
		if end > n {
			end = n
		}
		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(document.Path, idx),
			DocumentID: document.ID,
			Source:     document.Path,
			Page:       document.PageAt(start),
			Index:      idx,
			Start:      start,
			End:        end,
			Text:       string(runes[start:end]),
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// ChunkID derives a stable identifier from the source path and chunk position,
// so re-ingesting unchanged input produces the same IDs.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(index))).String()
}
