package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragchat/internal/config"
)

type app struct {
	cfgPath string
	verbose bool
	cfg     *config.AppConfig
}

// NewRootCmd builds the ragchat command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Chat with a folder of PDF documents",
		Long: `ragchat ingests a directory of PDF files into a local vector index and
answers questions about them through a hosted language model.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ./config.yaml, then ~/.config/ragchat/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newIngestCmd(a), newChatCmd(a))
	return root
}

func (a *app) loadConfig() error {
	_ = godotenv.Load()

	var err error
	if a.cfgPath == "" {
		a.cfg, _, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.cfgPath)
	}
	if err != nil {
		return err
	}
	if a.verbose {
		a.cfg.Logging.Level = "debug"
	}
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
