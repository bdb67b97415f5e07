package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trypie/ledger"
	"trypie/web"
)

func tokenCommand() *cobra.Command {
	var user string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token for a user",
		Long:  `Sign a bearer token with the configured JWT secret, for local testing and scripts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			token, err := web.NewTokenManager(cfg.Auth.JWTSecret).Generate(ledger.UserID(user), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user id put in the token (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
