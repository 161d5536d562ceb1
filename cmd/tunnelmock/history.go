package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/btouchard/tunnelmock/internal/mcp/handlers"
	"github.com/btouchard/tunnelmock/internal/store"
	"github.com/btouchard/tunnelmock/internal/tunnel"
)

var errDatabaseDisabled = errors.New("database is disabled (database.enabled: false)")

func newHistoryCmd() *cobra.Command {
	var (
		provider string
		outcome  string
		limit    int
		since    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded tunnel attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			if db == nil {
				return errDatabaseDisabled
			}
			defer func() { _ = db.Close() }()

			filter := store.AttemptFilter{Provider: provider, Outcome: outcome, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			attempts, err := db.ListAttempts(filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), handlers.FormatHistory(attempts, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "only show this provider")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only show this outcome (established, failed, unavailable, closed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of attempts")
	cmd.Flags().DurationVar(&since, "since", 0, "only show attempts newer than this (e.g. 24h)")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List enabled tunnel providers and their success rates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			registry, err := tunnel.NewRegistry(cfg.Tunnel.Providers, cfg.Tunnel.Ngrok.AuthToken != "")
			if err != nil {
				return err
			}

			stats := map[string]store.ProviderStat{}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer func() { _ = db.Close() }()
				list, err := db.ProviderStats(time.Time{})
				if err != nil {
					return err
				}
				for _, s := range list {
					stats[s.Provider] = s
				}
			}

			out := cmd.OutOrStdout()
			for _, name := range registry.Names() {
				s, ok := stats[name]
				if !ok {
					fmt.Fprintf(out, "%-14s no attempts recorded\n", name)
					continue
				}
				fmt.Fprintf(out, "%-14s %3d attempts, %3.0f%% established\n", name, s.Attempts, s.SuccessRate()*100)
			}
			return nil
		},
	}
}
