package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/logging"
	"ragchat/internal/service"
	"ragchat/internal/transcript"
	"ragchat/internal/tui"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about the ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, a)
		},
	}
}

func runChat(cmd *cobra.Command, a *app) error {
	cfg := a.cfg
	// the terminal belongs to the TUI, so logs only go to the file
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.ChatFile,
		Prefix: "chat",
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	emb, err := newEmbedder(cfg)
	if err != nil {
		logger.Error("embedder unavailable", "err", err)
		return err
	}
	llm, err := newChatModel(cfg)
	if err != nil {
		logger.Error("chat model unavailable", "err", err)
		return err
	}
	open, err := indexOpener(cfg)
	if err != nil {
		return err
	}

	recorder := transcript.Default(cfg.Transcript.TextPath, cfg.Transcript.JSONPath)
	session := service.NewSession(open, emb, llm, recorder, service.SessionConfig{
		TopK:         cfg.Retriever.TopK,
		Window:       cfg.Memory.Window,
		SystemPrompt: cfg.LLM.SystemPrompt,
	}, logger)
	defer session.Close()

	m := tui.New(cmd.Context(), session)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
