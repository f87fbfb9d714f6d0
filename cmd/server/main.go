package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nrjais/basestore/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "basestore",
	Short:         "Dynamic-schema record store served over gRPC",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// loadConfig reads the configuration and installs the process-wide logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
