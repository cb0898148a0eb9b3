package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/app"
	"github.com/shahryar908/agenticrag/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "ragctl - agentic RAG command line",
	Long: `ragctl manages the agentic RAG knowledge base and answers questions.

Commands build the same services as the API server from config/rag.yaml
(or CONFIG_PATH), so ingestion and queries hit the configured vector store.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $CONFIG_PATH or config/rag.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	rootCmd.AddCommand(askCmd, ingestCmd, seedCmd, statsCmd, clearCmd, mcpCmd, runsCmd)
}

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	path := configPath
	if path == "" {
		path = config.Path()
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = c
	if verbose {
		l, err := app.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
