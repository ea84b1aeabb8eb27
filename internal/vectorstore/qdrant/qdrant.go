package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on Init.
// Index metadata travels in every point's payload.
type Storage struct {
	url        string
	apiKey     string
	collection string
	meta       vectorstore.IndexMeta
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type statusError struct {
	method string
	url    string
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// emptyDimension sizes the collection of an index with no chunks, since
// Qdrant rejects a zero vector size.
const emptyDimension = 1

// Init creates the collection. An existing collection must be empty.
// An index with no chunks gets a placeholder-sized collection so that it can
// still be opened and searched.
func (s *Storage) Init(ctx context.Context, meta vectorstore.IndexMeta) error {
	if meta.Dimension < 0 {
		return fmt.Errorf("invalid dimension %d", meta.Dimension)
	}
	s.meta = meta
	n, err := s.Count(ctx)
	switch {
	case errors.Is(err, vectorstore.ErrIndexNotFound):
	case err != nil:
		return err
	case n > 0:
		return vectorstore.ErrIndexNotEmpty
	default:
		return nil
	}
	size := meta.Dimension
	if size == 0 {
		size = emptyDimension
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != s.meta.Dimension {
			return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vectors[i]), s.meta.Dimension)
		}
		points[i] = map[string]any{
			"id":     pointID(c.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id":        c.ID,
				"document_id":     c.DocumentID,
				"source":          c.Source,
				"page":            c.Page,
				"index":           c.Index,
				"start":           c.Start,
				"end":             c.End,
				"text":            c.Text,
				"embedding_model": s.meta.EmbeddingModel,
				"digest":          s.meta.Digest,
				"created_at":      s.meta.CreatedAt.UTC().Format(time.RFC3339),
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
}

// Meta reads the vector size from the collection info and the rest from one
// stored point. A collection without points reports dimension 0.
func (s *Storage) Meta(ctx context.Context) (vectorstore.IndexMeta, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info); err != nil {
		return vectorstore.IndexMeta{}, err
	}
	meta := vectorstore.IndexMeta{Dimension: info.Result.Config.Params.Vectors.Size}

	var scroll struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": 1, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &scroll); err != nil {
		return vectorstore.IndexMeta{}, err
	}
	if len(scroll.Result.Points) > 0 {
		p := scroll.Result.Points[0].Payload
		meta.EmbeddingModel, _ = p["embedding_model"].(string)
		meta.Digest, _ = p["digest"].(string)
		if v, ok := p["created_at"].(string); ok {
			meta.CreatedAt, _ = time.Parse(time.RFC3339, v)
		}
	} else {
		meta.Dimension = 0
	}
	s.meta = meta
	return meta, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	if s.meta.Dimension == 0 {
		// the placeholder collection would reject the query's vector size
		n, err := s.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: chunkFromPayload(r.Payload), Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Drop deletes the collection. A missing collection is not an error.
func (s *Storage) Drop(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		return nil
	}
	return err
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// pointID maps a chunk ID onto a UUID, since Qdrant only accepts UUIDs or integers.
func pointID(chunkID string) string {
	if id, err := uuid.Parse(chunkID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func chunkFromPayload(p map[string]any) domain.Chunk {
	var c domain.Chunk
	c.ID, _ = p["chunk_id"].(string)
	c.DocumentID, _ = p["document_id"].(string)
	c.Source, _ = p["source"].(string)
	c.Text, _ = p["text"].(string)
	if v, ok := p["page"].(float64); ok {
		c.Page = int(v)
	}
	if v, ok := p["index"].(float64); ok {
		c.Index = int(v)
	}
	if v, ok := p["start"].(float64); ok {
		c.Start = int(v)
	}
	if v, ok := p["end"].(float64); ok {
		c.End = int(v)
	}
	return c
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: collection %q", vectorstore.ErrIndexNotFound, s.collection)
	}
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
