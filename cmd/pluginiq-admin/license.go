package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

func newLicenseCommand(svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Grant, revoke and expire plugin licenses",
	}

	var plan, expires string
	grant := &cobra.Command{
		Use:   "grant TENANT_ID PLUGIN_ID",
		Short: "Grant a plugin license to a tenant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiresAt *time.Time
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("--expires: %w", err)
				}
				expiresAt = &t
			}

			l, err := svc().licenses.Grant(cmd.Context(), args[0], args[1], domain.LicensePlan(plan), expiresAt)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "granted %s %s license to %s: features [%s]",
				l.PluginID, l.Plan, l.TenantID, strings.Join(l.Features, ", "))
			if l.ExpiresAt != nil {
				printf(cmd.OutOrStdout(), ", expires %s", l.ExpiresAt.UTC().Format(time.RFC3339))
			}
			printf(cmd.OutOrStdout(), "\n")
			return nil
		},
	}
	grant.Flags().StringVar(&plan, "plan", string(domain.PlanFree), "free, trial, monthly, yearly or lifetime")
	grant.Flags().StringVar(&expires, "expires", "", "expiry (RFC 3339)")

	revoke := &cobra.Command{
		Use:   "revoke TENANT_ID PLUGIN_ID",
		Short: "Cancel a tenant's plugin license",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := svc().licenses.Revoke(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "license %s is now %s\n", l.ID, l.Status)
			return nil
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Expire licenses past their end date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := svc().licenses.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "expired %d license(s)\n", n)
			return nil
		},
	}

	cmd.AddCommand(grant, revoke, sweep)
	return cmd
}
