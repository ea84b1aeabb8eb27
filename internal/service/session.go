package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// ErrSessionClosed is reported for questions asked after Close.
var ErrSessionClosed = errors.New("session closed")

// State is the session lifecycle. It only moves forward.
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// ErrorKind classifies why an answer failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidInput
	KindUnavailable
	KindRetrieval
	KindGeneration
	KindTranscript
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid input"
	case KindUnavailable:
		return "unavailable"
	case KindRetrieval:
		return "retrieval"
	case KindGeneration:
		return "generation"
	case KindTranscript:
		return "transcript"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Result is the outcome of one question. Kind is KindNone on success.
type Result struct {
	Answer  string
	Sources []domain.SearchResult
	Turn    domain.Turn
	Kind    ErrorKind
	Err     error
}

// OK reports whether the question was answered.
func (r Result) OK() bool { return r.Kind == KindNone }

// IndexInfo describes the index a session serves from.
type IndexInfo struct {
	Meta   vectorstore.IndexMeta
	Chunks int
}

// Opener opens the persisted index for reading.
type Opener func(ctx context.Context) (vectorstore.Storage, error)

// TurnRecorder persists completed turns.
type TurnRecorder interface {
	Record(turn domain.Turn) error
}

// SessionConfig tunes retrieval depth, the conversation window and the
// system prompt. Zero values fall back to 5 chunks and 3 turns.
type SessionConfig struct {
	TopK         int
	Window       int
	SystemPrompt string
}

// Session answers questions against one index and keeps the conversation.
type Session struct {
	open     Opener
	embedder domain.Embedder
	chat     domain.ChatModel
	recorder TurnRecorder
	logger   *log.Logger
	cfg      SessionConfig
	now      func() time.Time

	// answerMu serialises questions; mu guards the fields below it.
	answerMu sync.Mutex
	mu       sync.Mutex
	state    State
	store    vectorstore.Storage
	info     IndexInfo
	window   *Window
	history  []domain.Turn
}

// NewSession returns an uninitialized session. The index is opened lazily
// by Init or the first Answer.
func NewSession(open Opener, embedder domain.Embedder, chat domain.ChatModel, recorder TurnRecorder, cfg SessionConfig, logger *log.Logger) *Session {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 3
	}
	return &Session{
		open:     open,
		embedder: embedder,
		chat:     chat,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		window:   NewWindow(cfg.Window),
	}
}

// Init opens the index once. Later calls return the cached info.
func (s *Session) Init(ctx context.Context) (IndexInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady {
		return s.info, nil
	}

	store, err := s.open(ctx)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("open index: %w", err)
	}
	meta, err := store.Meta(ctx)
	if err != nil {
		_ = store.Close()
		return IndexInfo{}, fmt.Errorf("read index metadata: %w", err)
	}
	if meta.EmbeddingModel != "" && meta.EmbeddingModel != s.embedder.Model() {
		_ = store.Close()
		return IndexInfo{}, fmt.Errorf("%w: index built with %q, configured %q",
			domain.ErrEmbeddingModelMismatch, meta.EmbeddingModel, s.embedder.Model())
	}
	n, err := store.Count(ctx)
	if err != nil {
		_ = store.Close()
		return IndexInfo{}, fmt.Errorf("count chunks: %w", err)
	}

	s.store = store
	s.info = IndexInfo{Meta: meta, Chunks: n}
	s.state = StateReady
	s.logger.Info("session ready", "chunks", n, "embedding_model", meta.EmbeddingModel, "chat_model", s.chat.Model())
	return s.info, nil
}

// Answer runs one retrieval round trip. The turn is recorded and added to
// the conversation only when every step succeeds.
func (s *Session) Answer(ctx context.Context, query string) Result {
	q := strings.TrimSpace(query)
	if q == "" {
		return Result{Kind: KindInvalidInput, Err: domain.ErrEmptyQuery}
	}
	if _, err := s.Init(ctx); err != nil {
		return s.failed(KindUnavailable, err)
	}

	s.answerMu.Lock()
	defer s.answerMu.Unlock()

	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return s.failed(KindUnavailable, ErrSessionClosed)
	}

	vec, err := s.embedder.EmbedQuery(ctx, q)
	if err != nil {
		return s.failed(KindRetrieval, fmt.Errorf("embed query: %w", err))
	}
	results, err := store.Search(ctx, vec, s.cfg.TopK)
	if err != nil {
		return s.failed(KindRetrieval, fmt.Errorf("search: %w", err))
	}
	s.logger.Debug("retrieved chunks", "count", len(results))

	s.mu.Lock()
	recent := s.window.Turns()
	s.mu.Unlock()

	answer, err := s.chat.Complete(ctx, BuildPrompt(s.cfg.SystemPrompt, results, recent, q))
	if err != nil {
		return s.failed(KindGeneration, fmt.Errorf("complete: %w", err))
	}

	sources := make([]string, len(results))
	for i, r := range results {
		sources[i] = r.Chunk.ID
	}
	turn := domain.Turn{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		User:      q,
		Assistant: answer,
		Sources:   sources,
	}
	if err := s.recorder.Record(turn); err != nil {
		return s.failed(KindTranscript, fmt.Errorf("record turn: %w", err))
	}

	s.mu.Lock()
	s.window.Push(turn)
	s.history = append(s.history, turn)
	s.mu.Unlock()

	s.logger.Info("answered", "turn", turn.ID, "sources", len(sources))
	return Result{Answer: answer, Sources: results, Turn: turn}
}

func (s *Session) failed(kind ErrorKind, err error) Result {
	if errors.Is(err, context.Canceled) {
		s.logger.Warn("answer cancelled", "kind", kind)
	} else {
		s.logger.Error("answer failed", "kind", kind, "err", err)
	}
	return Result{Kind: kind, Err: err}
}

// History returns every successful turn in order.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// State reports whether the index has been opened.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the index. Later answers fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
