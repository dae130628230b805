package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a user id",
		Long: `Issue a bearer token signed with the configured JWT secret. Without
--user a random user id is generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}

			userID := uuid.New()
			if user != "" {
				userID, err = uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid user id %q: %w", user, err)
				}
			}

			svc, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := svc.GenerateToken(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "user %s, valid for %s\n", userID, cfg.Auth.TokenLifetime)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id to issue the token for")
	return cmd
}
