package vectorstore

import (
	"context"
	"errors"
	"math"
	"time"

	"ragchat/internal/domain"
)

var (
	// ErrIndexNotFound is returned when a persisted index does not exist yet.
	ErrIndexNotFound = errors.New("vector index not found")
	// ErrIndexNotEmpty is returned by Init when the target already holds chunks.
	ErrIndexNotEmpty = errors.New("vector index is not empty")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// IndexMeta describes how an index was built.
type IndexMeta struct {
	EmbeddingModel string
	Dimension      int
	Digest         string
	CreatedAt      time.Time
}

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(ctx context.Context, meta IndexMeta) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Meta(ctx context.Context) (IndexMeta, error)
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
