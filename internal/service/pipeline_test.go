package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/loader"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore"
)

func newTestPipeline(l domain.Loader, emb domain.Embedder, store vectorstore.Storage) *Pipeline {
	logger, _ := bufferLogger()
	return NewPipeline(l, chunker.NewCharacterChunker(2000, 500), emb, store, summarizer.NewFrequencySummarizer(), 2, logger)
}

func TestPipeline_NonPDFDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	store := newRecordingStore()
	emb := &keywordEmbedder{model: "m", keyword: "zebra"}
	logger, buf := bufferLogger()
	p := NewPipeline(loader.NewPDFDirectory(), chunker.NewCharacterChunker(2000, 500), emb, store, nil, 0, logger)

	report, err := p.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	assert.Zero(t, report.Chunks)
	assert.Zero(t, emb.calls)
	assert.Contains(t, buf.String(), "no documents found")
	assert.Equal(t, "m", store.meta.EmbeddingModel)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipeline_MissingDirectory(t *testing.T) {
	logger, buf := bufferLogger()
	p := NewPipeline(loader.NewPDFDirectory(), chunker.NewCharacterChunker(2000, 500),
		&keywordEmbedder{model: "m"}, newRecordingStore(), nil, 0, logger)

	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "load: "))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, buf.String(), "stage=load")
}

func TestPipeline_EmbedFailureIsWrapped(t *testing.T) {
	docs := []domain.Document{{ID: "d", Path: "a.pdf", Content: strings.Repeat("x", 3000)}}
	store := newRecordingStore()
	p := newTestPipeline(staticLoader{docs: docs}, &keywordEmbedder{model: "m", err: errRemote}, store)

	_, err := p.Run(context.Background(), "ignored")
	assert.ErrorIs(t, err, errRemote)
	assert.True(t, strings.HasPrefix(err.Error(), "embed: "))
	assert.Empty(t, store.chunks)
}

func TestPipeline_IndexNotEmpty(t *testing.T) {
	docs := []domain.Document{{ID: "d", Path: "a.pdf", Content: "Zebra facts."}}
	store := newRecordingStore()
	emb := &keywordEmbedder{model: "m", keyword: "zebra"}
	p := newTestPipeline(staticLoader{docs: docs}, emb, store)

	_, err := p.Run(context.Background(), "ignored")
	require.NoError(t, err)
	_, err = p.Run(context.Background(), "ignored")
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotEmpty)
	assert.True(t, strings.HasPrefix(err.Error(), "persist: "))
}

func TestPipeline_RerunIntoFreshIndexIsDeterministic(t *testing.T) {
	content := strings.Repeat("The zebra runs. ", 400)
	docs := []domain.Document{
		{ID: "d1", Path: "a.pdf", Content: content},
		{ID: "d2", Path: "b.pdf", Content: "Short doc about stripes."},
	}
	emb := &keywordEmbedder{model: "m", keyword: "zebra"}

	first := newRecordingStore()
	p1 := newTestPipeline(staticLoader{docs: docs}, emb, first)
	r1, err := p1.Run(context.Background(), "ignored")
	require.NoError(t, err)

	second := newRecordingStore()
	p2 := newTestPipeline(staticLoader{docs: docs}, emb, second)
	r2, err := p2.Run(context.Background(), "ignored")
	require.NoError(t, err)

	assert.Equal(t, first.chunks, second.chunks)
	assert.Equal(t, r1.Chunks, r2.Chunks)
	assert.Equal(t, 2, r1.Dimension)
	assert.NotEmpty(t, r1.Digest)
	assert.Equal(t, r1.Digest, first.meta.Digest)
	// 6400 chars: ceil((6400-500)/1500) = 4, plus the short document
	assert.Equal(t, 5, r1.Chunks)
}
