// Package cmd implements agentboardd's command-line interface: a small
// cobra command tree wiring global flags to internal/config and
// dispatching to the serve and doctor subcommands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/config"
)

var (
	flagDBPath   string
	flagPort     int
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "agentboardd",
	Short:         "Correlate tmux windows with AI-agent session logs and stream terminals to clients",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "path to the session database (overrides AGENTBOARD_DB_PATH)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "gateway listen port (overrides PORT)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentboardd:", err)
		return 1
	}
	return 0
}

// loadConfig resolves config.Config from the environment and overlays
// any flags the user passed explicitly on the command line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
