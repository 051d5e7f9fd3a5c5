// Package cli wires the cursor-flow commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartdio/cursor-flow/internal/config"
	"github.com/smartdio/cursor-flow/internal/envfile"
)

var rootCmd = &cobra.Command{
	Use:   "cursor-flow",
	Short: "Drive a coding agent through a task queue until each task is done",
	Long: `cursor-flow reads a JSON task queue, launches the configured coding agent
for each pending task, and keeps resuming the agent session until an LLM
judge declares the task complete, a runtime error occurs, or the retry
ceiling is reached. Progress is persisted after every task, so an
interrupted run picks up where it left off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFileName, "Path to the cursor-flow.yaml config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to an optional KEY=VALUE env file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the env file and configuration shared by every subcommand.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	envPath, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, nil, err
	}
	if err := envfile.Load(envPath); err != nil {
		return nil, nil, err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	levelFlag, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, nil, err
	}
	levelName := cfg.LogLevel
	if levelFlag != "" {
		levelName = levelFlag
	}
	level, err := parseLogLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
