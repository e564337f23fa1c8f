package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/pluginiq/internal/adapter/fsm"
	handler "github.com/neomorfeo/pluginiq/internal/adapter/http"
	oteladapter "github.com/neomorfeo/pluginiq/internal/adapter/otel"
	"github.com/neomorfeo/pluginiq/internal/adapter/prometheus"
	redisadapter "github.com/neomorfeo/pluginiq/internal/adapter/redis"
	riveradapter "github.com/neomorfeo/pluginiq/internal/adapter/river"
	"github.com/neomorfeo/pluginiq/internal/adapter/sqlite"
	"github.com/neomorfeo/pluginiq/internal/app"
	"github.com/neomorfeo/pluginiq/internal/auth"
	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/migration"
	"github.com/neomorfeo/pluginiq/internal/plugins/blog"
	"github.com/neomorfeo/pluginiq/internal/registry"
	"github.com/neomorfeo/pluginiq/internal/tenancy"
)

const version = "0.1.0"

// server is the fully wired process, minus the listener.
type server struct {
	router  http.Handler
	store   *sqlite.Store
	queue   *riveradapter.Client
	signer  *auth.Signer
	closers []func()
}

func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// builtinPlugins are the compile-time-known plugins registered at start.
func builtinPlugins() []domain.Manifest {
	return []domain.Manifest{blog.Manifest()}
}

func newServer(ctx context.Context, cfg config, logger *slog.Logger) (_ *server, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// --- Adapters (out) ---
	db, err := oteladapter.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	s.store, err = sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema: %w", err)
	}
	s.closers = append(s.closers, func() { s.store.Close() })

	var tenants domain.TenantRepository = oteladapter.NewTracingTenants(s.store.Tenants())
	if cfg.RedisAddr != "" {
		rdb := redisadapter.NewClient(cfg.RedisAddr, "", cfg.RedisDB)
		s.closers = append(s.closers, func() { rdb.Close() })
		tenants = redisadapter.NewCachingTenants(tenants, rdb, cfg.CacheTTL, logger)
	}
	licenses := oteladapter.NewTracingLicenses(s.store.Licenses())
	states := oteladapter.NewTracingPluginStates(s.store.PluginStates())

	metrics := prometheus.New()

	// --- Core ---
	reg := registry.New(fsm.New(), logger)
	reg.OnAll(metrics.ObserveEvent)
	runner := migration.NewRunner(s.store.Migrations(), logger, migration.WithObserver(metrics.ObserveMigration))

	plugins := app.NewPluginService(reg, runner, app.PluginStores{
		States:   states,
		Licenses: licenses,
		Flags:    s.store.FeatureFlags(),
		Purger:   s.store.Migrations(),
	}, logger)
	licenseSvc := app.NewLicenseService(reg, tenants, licenses, s.store.FeatureFlags(), logger)

	s.queue, err = riveradapter.Setup(ctx, db, riveradapter.Options{
		Logger:        logger,
		Sweeper:       prometheus.CountingSweeper{Next: licenseSvc, Metrics: metrics},
		SweepInterval: cfg.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("river: %w", err)
	}
	app.ForwardEvents(reg, oteladapter.NewTracingPublisher(riveradapter.NewPublisher(s.queue)), logger)

	if err := plugins.Bootstrap(ctx, builtinPlugins()...); err != nil {
		return nil, fmt.Errorf("registering plugins: %w", err)
	}

	// --- Adapters (in) ---
	s.signer = auth.NewSigner(cfg.AuthSecret)
	resolver := tenancy.NewResolver(tenants, licenses, cfg.BaseDomain, logger)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("pluginiq", otelchi.WithChiRoutes(router)))
	router.Use(handler.DetectTenant(resolver, logger))
	router.Handle("/metrics", metrics.Handler())

	api := handler.NewAPI(router, "pluginiq", version)
	handler.Register(api, handler.Services{
		Plugins:  plugins,
		Tenants:  app.NewTenantService(tenants),
		Licenses: licenseSvc,
		Signer:   s.signer,
		Posts:    blog.NewPosts(db),
	}, logger)

	s.router = router
	return s, nil
}
