package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/config"
)

// version is reported by GET /health and the extraction API docs.
const version = "1.0.0"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "process-extract",
	Short: "Structured extraction service for legal process documents",
	Long:  "Downloads or receives legal process PDFs, extracts a structured resume, timeline and evidence list via Claude, and persists the result per case.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
