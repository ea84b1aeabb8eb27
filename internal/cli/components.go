package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	embopenai "ragchat/internal/embedding/openai"
	llmopenai "ragchat/internal/llm/openai"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/qdrant"
	"ragchat/internal/vectorstore/sqlite"
)

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai", "":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		e := cfg.Embedder.OpenAI
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    e.BaseURL,
			APIKeyEnv:  e.APIKeyEnv,
			Model:      e.Model,
			Timeout:    time.Duration(e.TimeoutSecs) * time.Second,
			BatchSize:  e.BatchSize,
			MaxRetries: *e.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newChatModel(cfg *config.AppConfig) (domain.ChatModel, error) {
	model, err := llmopenai.NewChatModel(llmopenai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		MaxRetries:  *cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "character", "":
		return chunker.NewCharacterChunker(cfg.Chunker.Size, *cfg.Chunker.Overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func newSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}

func newQdrant(cfg *config.AppConfig) (*qdrant.Storage, error) {
	q := cfg.VectorStore.Qdrant
	if q == nil {
		return nil, errors.New("qdrant config missing")
	}
	return qdrant.NewStorage(qdrant.Config{
		URL:        q.URL,
		APIKey:     q.APIKey,
		Collection: q.Collection,
		Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
	}), nil
}

// openIndexForWrite prepares the store ingestion writes into. With reset the
// previous index is removed first.
func openIndexForWrite(ctx context.Context, cfg *config.AppConfig, reset bool) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		if reset {
			if err := sqlite.Remove(cfg.VectorStore.Dir); err != nil {
				return nil, fmt.Errorf("reset index: %w", err)
			}
		}
		st, err := sqlite.Open(cfg.VectorStore.Dir, sqlite.ReadWrite)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "qdrant":
		st, err := newQdrant(cfg)
		if err != nil {
			return nil, err
		}
		if reset {
			if err := st.Drop(ctx); err != nil {
				return nil, fmt.Errorf("reset index: %w", err)
			}
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

// indexOpener returns a read-only opener for the chat session.
func indexOpener(cfg *config.AppConfig) (service.Opener, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		dir := cfg.VectorStore.Dir
		return func(context.Context) (vectorstore.Storage, error) {
			st, err := sqlite.Open(dir, sqlite.ReadOnly)
			if err != nil {
				return nil, err
			}
			return st, nil
		}, nil
	case "qdrant":
		st, err := newQdrant(cfg)
		if err != nil {
			return nil, err
		}
		return func(context.Context) (vectorstore.Storage, error) { return st, nil }, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
