// Command tunnelmock exposes a mock HTTP server on a public tunnel URL.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/btouchard/tunnelmock/internal/config"
	"github.com/btouchard/tunnelmock/internal/store"
)

var (
	version = "dev"
	cfgFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tunnelmock",
		Short:        "Mock HTTP server reachable through a public tunnel",
		Long:         `tunnelmock starts a stub-driven mock HTTP server, exposes it through a public relay and lets you install stubs and inspect captured requests.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: search /etc/tunnelmock, ~/.config/tunnelmock, ./tunnelmock.yaml)")

	root.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newProvidersCmd(),
		newHistoryCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tunnelmock %s\n", version)
		},
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout carries the public URL, logs go to stderr.
	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(config.ExpandHome(cfg.Server.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stderr only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	slog.SetDefault(slog.New(slog.NewMultiHandler(handlers...)))
}

// openStore returns nil when the database is disabled.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
