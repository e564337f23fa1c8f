package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

func newTenantCommand(svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var plan, customDomain string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a tenant; the slug is derived from the name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := svc().tenants.Create(cmd.Context(), args[0], plan, customDomain)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "created tenant %s (slug %s)\n", t.ID, t.Slug)
			return nil
		},
	}
	create.Flags().StringVar(&plan, "plan", "free", "subscription plan")
	create.Flags().StringVar(&customDomain, "domain", "", "custom domain")

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.ListFilter{Limit: limit}
			if status != "" {
				s := domain.TenantStatus(status)
				filter.Status = &s
			}
			tenants, err := svc().tenants.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(w, "ID\tSLUG\tNAME\tPLAN\tSTATUS\tDOMAIN\n")
			for _, t := range tenants {
				printf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.Name, t.Plan, t.Status, t.CustomDomain)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "only tenants in this status")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of tenants (0 for all)")

	cmd.AddCommand(create, list)
	return cmd
}
