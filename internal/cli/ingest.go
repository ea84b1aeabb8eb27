package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"ragchat/internal/loader"
	"ragchat/internal/logging"
	"ragchat/internal/service"
)

func newIngestCmd(a *app) *cobra.Command {
	var dir string
	var reset bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the vector index from a directory of PDF files",
		Long: `Loads every PDF in the documents directory, splits the text into overlapping
chunks, embeds them through the configured embedding API and writes the index.
An existing index is never overwritten unless --reset is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Documents.Dir
			}
			return runIngest(cmd, a, dir, reset)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding the PDF files (default from config)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the existing index before ingesting")
	return cmd
}

func runIngest(cmd *cobra.Command, a *app, dir string, reset bool) error {
	cfg := a.cfg
	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.IngestFile,
		Console: os.Stderr,
		Prefix:  "ingest",
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	// credentials and component config are checked before any work starts
	emb, err := newEmbedder(cfg)
	if err != nil {
		logger.Error("embedder unavailable", "err", err)
		return err
	}
	ch, err := newChunker(cfg)
	if err != nil {
		return err
	}
	sum, err := newSummarizer(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openIndexForWrite(ctx, cfg, reset)
	if err != nil {
		logger.Error("index unavailable", "dir", cfg.VectorStore.Dir, "err", err)
		return err
	}
	defer store.Close()

	ld := loader.NewPDFDirectory()
	if cfg.Documents.Pattern != "" {
		ld.Pattern = cfg.Documents.Pattern
	}
	pipeline := service.NewPipeline(ld, ch, emb, store, sum, cfg.Summarizer.MaxSentences, logger)
	report, err := pipeline.Run(ctx, dir)
	if err != nil {
		return err
	}

	cmd.Printf("Indexed %d chunks from %d documents (%s, dim %d) in %s\n",
		report.Chunks, report.Documents, report.EmbeddingModel, report.Dimension, report.Duration.Round(time.Millisecond))
	if report.Digest != "" {
		cmd.Printf("Digest: %s\n", report.Digest)
	}
	return nil
}
