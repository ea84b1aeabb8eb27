package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu      sync.RWMutex
	meta    vectorstore.IndexMeta
	vectors [][]float32
	chunks  []domain.Chunk
	byID    map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, meta vectorstore.IndexMeta) error {
	if meta.Dimension < 0 {
		return fmt.Errorf("invalid dimension %d", meta.Dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) > 0 {
		return vectorstore.ErrIndexNotEmpty
	}
	s.meta = meta
	return nil
}

// Upsert replaces chunks with a known ID and appends the rest.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.meta.Dimension {
			return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(v), s.meta.Dimension)
		}
	}
	for i, c := range chunks {
		if j, ok := s.byID[c.ID]; ok {
			s.chunks[j] = c
			s.vectors[j] = vectors[i]
			continue
		}
		s.byID[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Meta(_ context.Context) (vectorstore.IndexMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, nil
}

// Search returns up to topK chunks ordered by descending similarity.
// Ties keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if len(s.vectors) > 0 && len(vector) != s.meta.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), s.meta.Dimension)
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = vectorstore.Cosine(s.vectors[i], vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Close() error { return nil }

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
