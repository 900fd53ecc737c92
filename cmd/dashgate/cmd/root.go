package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dashgate/dashgate/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dashgate",
	Short: "dashgate guards a personal dashboard API",
	Long: `dashgate authenticates the dashboard operator with a password-backed
session cookie, issues scoped API keys for automation and authorizes every
request against a registered scope.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	err := rootCmd.Execute()
	// Wipe the keyring enclaves' key material before exiting.
	memguard.Purge()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DASH_CONFIG"), "Path to a YAML config file")
}

// loadConfig reads the config file and environment. Callers apply their
// flags and then validate.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
