package main

import (
	"fmt"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/alexjbarnes/playlist-sync/internal/config"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for a user",
	Long: `Mint an HS256 bearer token signed with JWT_SECRET.

Examples:
  playlist-sync token alice
  playlist-sync token alice --ttl 24h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.ModeServe)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		token, err := auth.IssueToken([]byte(cfg.JWTSecret), args[0], tokenTTL)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)

		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "Token lifetime")
}
