package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentcore/internal/config"
)

var configFlag string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentcore",
		Short: "Run autonomous agent tasks against configured LLM providers",
		Long: `agentcore drives a task through an LLM-and-tools execution loop:
the model thinks, calls tools, recovers from failures, and reports the result.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (json5 or yaml)")
	cmd.AddCommand(runCmd())
	cmd.AddCommand(historyCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(toolsCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath picks the config file: --config flag, AGENTCORE_CONFIG,
// ./agentcore.json5, then ~/.agentcore/config.json5.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if env := os.Getenv("AGENTCORE_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("agentcore.json5"); err == nil {
		return "agentcore.json5"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentcore.json5"
	}
	return filepath.Join(home, ".agentcore", "config.json5")
}

// loadConfig loads and validates the resolved config file.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// setupLogging configures the process-wide slog handler.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
