package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Documents      int
	Chunks         int
	Dimension      int
	EmbeddingModel string
	Digest         string
	Duration       time.Duration
}

// Pipeline turns a directory of documents into a persisted vector index.
type Pipeline struct {
	loader              domain.Loader
	chunker             domain.Chunker
	embedder            domain.Embedder
	store               vectorstore.Storage
	summarizer          domain.Summarizer
	summaryMaxSentences int
	logger              *log.Logger
	now                 func() time.Time
}

func NewPipeline(loader domain.Loader, chunker domain.Chunker, embedder domain.Embedder, store vectorstore.Storage, summarizer domain.Summarizer, summaryMaxSentences int, logger *log.Logger) *Pipeline {
	return &Pipeline{
		loader:              loader,
		chunker:             chunker,
		embedder:            embedder,
		store:               store,
		summarizer:          summarizer,
		summaryMaxSentences: summaryMaxSentences,
		logger:              logger,
		now:                 time.Now,
	}
}

// Run loads, splits, embeds and persists every document in dir. It is
// all-or-nothing: the first failing stage aborts the run.
func (p *Pipeline) Run(ctx context.Context, dir string) (IngestReport, error) {
	start := p.now()
	report := IngestReport{EmbeddingModel: p.embedder.Model()}

	docs, err := p.loader.Load(ctx, dir)
	if err != nil {
		return report, p.fail("load", err)
	}
	report.Documents = len(docs)
	p.logger.Info("loaded documents", "stage", "load", "dir", dir, "documents", len(docs))
	if len(docs) == 0 {
		p.logger.Warn("no documents found, writing an empty index", "dir", dir)
	}

	var chunks []domain.Chunk
	var corpus strings.Builder
	for _, d := range docs {
		cs, err := p.chunker.Chunk(d)
		if err != nil {
			return report, p.fail("split", fmt.Errorf("%s: %w", d.Path, err))
		}
		if len(cs) == 0 {
			p.logger.Warn("document has no text", "path", d.Path)
		}
		chunks = append(chunks, cs...)
		corpus.WriteString(d.Content)
		corpus.WriteString("\n")
	}
	report.Chunks = len(chunks)
	p.logger.Info("split documents", "stage", "split", "chunks", len(chunks))

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err = p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return report, p.fail("embed", err)
		}
		if len(vectors) != len(chunks) {
			return report, p.fail("embed", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
		}
		report.Dimension = len(vectors[0])
		for i, v := range vectors {
			if len(v) != report.Dimension {
				return report, p.fail("embed", fmt.Errorf("chunk %d: %w: got %d, want %d", i, vectorstore.ErrDimensionMismatch, len(v), report.Dimension))
			}
		}
	}
	p.logger.Info("embedded chunks", "stage", "embed", "vectors", len(vectors), "dimension", report.Dimension, "model", report.EmbeddingModel)

	if p.summarizer != nil {
		digest, err := p.summarizer.Summarize(corpus.String(), p.summaryMaxSentences)
		if err != nil {
			return report, p.fail("digest", err)
		}
		report.Digest = digest
		p.logger.Debug("computed digest", "stage", "digest", "digest", digest)
	}

	meta := vectorstore.IndexMeta{
		EmbeddingModel: report.EmbeddingModel,
		Dimension:      report.Dimension,
		Digest:         report.Digest,
		CreatedAt:      p.now().UTC(),
	}
	if err := p.store.Init(ctx, meta); err != nil {
		return report, p.fail("persist", err)
	}
	if err := p.store.Upsert(ctx, chunks, vectors); err != nil {
		return report, p.fail("persist", err)
	}
	report.Duration = p.now().Sub(start)
	p.logger.Info("persisted index", "stage", "persist", "chunks", len(chunks), "elapsed", report.Duration)
	return report, nil
}

func (p *Pipeline) fail(stage string, err error) error {
	p.logger.Error("ingestion failed", "stage", stage, "err", err)
	return fmt.Errorf("%s: %w", stage, err)
}
