package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

func newPluginsCommand(svc func() *services) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugins and their state for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			catalog, err := svc().plugins.List(ctx, tenantID)
			if err != nil {
				return err
			}
			licenses, err := svc().licenses.Licenses(ctx, tenantID)
			if err != nil {
				return err
			}

			status := make(map[string]domain.PluginState, len(catalog.States))
			for _, st := range catalog.States {
				status[st.PluginID] = st
			}
			plans := make(map[string]domain.LicensePlan, len(licenses))
			for _, l := range licenses {
				plans[l.PluginID] = l.Plan
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(w, "PLUGIN\tVERSION\tSTATUS\tLICENSE\n")
			for _, m := range catalog.Plugins {
				st, installed := status[m.ID]
				state := "-"
				if installed {
					state = string(st.Status)
				}
				plan := "-"
				if p, ok := plans[m.ID]; ok {
					plan = string(p)
				}
				printf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Version, state, plan)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", domain.DefaultTenantID, "tenant id")
	return cmd
}
