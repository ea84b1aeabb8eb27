package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
)

// keywordEmbedder maps text to [occurrences of keyword, 0.1].
type keywordEmbedder struct {
	model   string
	keyword string
	err     error
	calls   int
}

func (e *keywordEmbedder) Model() string { return e.model }

func (e *keywordEmbedder) vector(text string) []float32 {
	return []float32{float32(strings.Count(strings.ToLower(text), e.keyword)), 0.1}
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

type scriptedChat struct {
	mu       sync.Mutex
	err      error
	prompts  [][]domain.Message
	replyFor func(n int) string
}

func (c *scriptedChat) Model() string { return "chat-m" }

func (c *scriptedChat) Complete(_ context.Context, messages []domain.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, messages)
	if c.err != nil {
		return "", c.err
	}
	if c.replyFor != nil {
		return c.replyFor(len(c.prompts)), nil
	}
	return "It is near the end.", nil
}

func (c *scriptedChat) lastUserPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.prompts[len(c.prompts)-1]
	return msgs[len(msgs)-1].Content
}

type memRecorder struct {
	err   error
	turns []domain.Turn
}

func (r *memRecorder) Record(t domain.Turn) error {
	if r.err != nil {
		return r.err
	}
	r.turns = append(r.turns, t)
	return nil
}

// recordingStore remembers what the pipeline upserted.
type recordingStore struct {
	*memory.Storage
	meta   vectorstore.IndexMeta
	chunks []domain.Chunk
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Storage: memory.NewStorage()}
}

func (s *recordingStore) Init(ctx context.Context, meta vectorstore.IndexMeta) error {
	s.meta = meta
	return s.Storage.Init(ctx, meta)
}

func (s *recordingStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	s.chunks = append(s.chunks, chunks...)
	return s.Storage.Upsert(ctx, chunks, vectors)
}

type staticLoader struct {
	docs []domain.Document
	err  error
}

func (l staticLoader) Load(context.Context, string) ([]domain.Document, error) { return l.docs, l.err }

func bufferLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel}), &buf
}

var errRemote = errors.New("remote unavailable")
