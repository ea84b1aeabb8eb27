package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

type fakeQdrant struct {
	mu     sync.Mutex
	exists bool
	size   int
	points []map[string]any
	apiKey string
}

func (f *fakeQdrant) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKey = r.Header.Get("api-key")

		path := strings.TrimPrefix(r.URL.Path, "/collections/docs")
		if !f.exists && !(r.Method == http.MethodPut && path == "") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		write := func(v any) {
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": v}))
		}
		switch {
		case r.Method == http.MethodPut && path == "":
			vectors := body["vectors"].(map[string]any)
			f.exists = true
			f.size = int(vectors["size"].(float64))
			write(true)
		case r.Method == http.MethodGet && path == "":
			write(map[string]any{
				"points_count": len(f.points),
				"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
			})
		case r.Method == http.MethodPut && path == "/points":
			for _, p := range body["points"].([]any) {
				f.points = append(f.points, p.(map[string]any))
			}
			write(map[string]any{"status": "completed"})
		case r.Method == http.MethodPost && path == "/points/count":
			write(map[string]any{"count": len(f.points)})
		case r.Method == http.MethodPost && path == "/points/scroll":
			pts := []any{}
			if len(f.points) > 0 {
				pts = append(pts, map[string]any{"id": f.points[0]["id"], "payload": f.points[0]["payload"]})
			}
			write(map[string]any{"points": pts})
		case r.Method == http.MethodPost && path == "/points/search":
			if len(body["vector"].([]any)) != f.size {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			out := []any{}
			limit := int(body["limit"].(float64))
			for i, p := range f.points {
				if i >= limit {
					break
				}
				out = append(out, map[string]any{"id": p["id"], "score": 1.0 - float64(i)*0.1, "payload": p["payload"]})
			}
			write(out)
		case r.Method == http.MethodDelete && path == "":
			f.exists = false
			f.points = nil
			write(true)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
}

func newTestStorage(t *testing.T) (*Storage, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return openTestStorage(t, srv.URL), fake
}

func openTestStorage(t *testing.T, url string) *Storage {
	t.Helper()
	s := NewStorage(Config{URL: url + "/", APIKey: "secret", Collection: "docs", Timeout: 5 * time.Second})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_MissingCollection(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Meta(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}

func TestStorage_RoundTrip(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	meta := vectorstore.IndexMeta{EmbeddingModel: "embed-m", Dimension: 2, Digest: "about cats", CreatedAt: created}

	require.NoError(t, s.Init(ctx, meta))
	chunks := []domain.Chunk{
		{ID: "c1", DocumentID: "d", Source: "a.pdf", Page: 1, Index: 0, Start: 0, End: 10, Text: "first"},
		{ID: "c2", DocumentID: "d", Source: "a.pdf", Page: 2, Index: 1, Start: 5, End: 15, Text: "second"},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float32{{1, 0}, {0, 1}}))
	fake.mu.Lock()
	assert.Equal(t, "secret", fake.apiKey)
	fake.mu.Unlock()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	res, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, chunks[0], res[0].Chunk)
	assert.Equal(t, chunks[1], res[1].Chunk)

	err = s.Init(ctx, meta)
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotEmpty)

	require.NoError(t, s.Drop(ctx))
	require.NoError(t, s.Drop(ctx))
}

func TestStorage_UpsertDimensionMismatch(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, vectorstore.IndexMeta{Dimension: 3}))

	err := s.Upsert(ctx, []domain.Chunk{{ID: "x"}}, [][]float32{{1}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestPointID(t *testing.T) {
	id := "6ba7b811-9dad-11d1-80b4-00c04fd430c8"
	assert.Equal(t, id, pointID(id))
	assert.Equal(t, pointID("plain"), pointID("plain"))
	assert.NotEqual(t, pointID("plain"), pointID("other"))
}

func TestStorage_EmptyIndexCanBeServed(t *testing.T) {
	writer, fake := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, writer.Init(ctx, vectorstore.IndexMeta{EmbeddingModel: "embed-m"}))
	require.NoError(t, writer.Upsert(ctx, nil, nil))
	fake.mu.Lock()
	assert.True(t, fake.exists)
	assert.Equal(t, emptyDimension, fake.size)
	fake.mu.Unlock()

	reader := openTestStorage(t, writer.url)
	meta, err := reader.Meta(ctx)
	require.NoError(t, err)
	assert.Zero(t, meta.Dimension)

	n, err := reader.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := reader.Search(ctx, []float32{0.1, 0.2, 0.3}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}
