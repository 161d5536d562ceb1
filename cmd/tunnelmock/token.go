package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/btouchard/tunnelmock/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var rotate bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the MCP bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if rotate && cfg.MCP.Token != "" {
				return fmt.Errorf("mcp.token is set in the configuration; edit it there instead")
			}

			var token string
			if rotate {
				token, err = auth.RotateToken(cfg.Server.DataDir)
			} else {
				token, err = auth.ResolveToken(cfg.MCP.Token, cfg.Server.DataDir)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rotate, "rotate", false, "replace the persisted token")
	return cmd
}
