package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/pluginiq/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		id     auth.Identity
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Issue a bearer token signed with AUTH_SECRET",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return errors.New("--secret or AUTH_SECRET is required")
			}
			if id.UserID == "" {
				return errors.New("--user is required")
			}
			token, err := auth.NewSigner(secret, auth.WithTTL(ttl)).Issue(id)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&id.Email, "email", "", "user email")
	cmd.Flags().StringVar(&id.Role, "role", "", `role ("admin" for admin routes)`)
	cmd.Flags().StringVar(&id.TenantID, "tenant", "", "bind the token to a tenant id")
	cmd.Flags().StringVar(&secret, "secret", envOrDefault("AUTH_SECRET", ""), "signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
