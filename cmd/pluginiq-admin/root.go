package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/pluginiq/internal/adapter/fsm"
	"github.com/neomorfeo/pluginiq/internal/adapter/sqlite"
	"github.com/neomorfeo/pluginiq/internal/app"
	"github.com/neomorfeo/pluginiq/internal/migration"
	"github.com/neomorfeo/pluginiq/internal/plugins/blog"
	"github.com/neomorfeo/pluginiq/internal/registry"
)

// services is what every subcommand works with. It is opened before the
// command runs and closed after.
type services struct {
	store    *sqlite.Store
	plugins  *app.PluginService
	tenants  *app.TenantService
	licenses *app.LicenseService
}

func openServices(ctx context.Context, dbPath string, logger *slog.Logger) (*services, error) {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}

	reg := registry.New(fsm.New(), logger)
	plugins := app.NewPluginService(reg, migration.NewRunner(store.Migrations(), logger), app.PluginStores{
		States:   store.PluginStates(),
		Licenses: store.Licenses(),
		Flags:    store.FeatureFlags(),
		Purger:   store.Migrations(),
	}, logger)
	if err := plugins.Bootstrap(ctx, blog.Manifest()); err != nil {
		store.Close()
		return nil, fmt.Errorf("registering plugins: %w", err)
	}

	return &services{
		store:    store,
		plugins:  plugins,
		tenants:  app.NewTenantService(store.Tenants()),
		licenses: app.NewLicenseService(reg, store.Tenants(), store.Licenses(), store.FeatureFlags(), logger),
	}, nil
}

func newRootCommand() *cobra.Command {
	var (
		dbPath  string
		verbose bool
		svc     *services
	)

	root := &cobra.Command{
		Use:           "pluginiq-admin",
		Short:         "Operator tooling for the pluginiq platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			var err error
			svc, err = openServices(cmd.Context(), dbPath, logger)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if svc == nil {
				return nil
			}
			return svc.store.Close()
		},
	}

	root.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("DATABASE_PATH", "pluginiq.db"), "SQLite database path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	get := func() *services { return svc }
	root.AddCommand(
		newTenantCommand(get),
		newLicenseCommand(get),
		newPluginsCommand(get),
		newTokenCommand(),
	)
	return root
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
