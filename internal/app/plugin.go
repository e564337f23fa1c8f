package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/migration"
	"github.com/neomorfeo/pluginiq/internal/registry"
)

// PluginStores groups the persistence ports the plugin service writes to.
type PluginStores struct {
	States   domain.PluginStateRepository
	Licenses domain.LicenseRepository
	Flags    domain.FeatureFlagRepository
	Purger   domain.TenantDataPurger
}

// PluginCatalog is the view of the registry returned by List.
type PluginCatalog struct {
	Plugins []domain.Manifest
	States  []domain.PluginState
}

// PluginService orchestrates plugin lifecycle operations for tenants. Each
// operation refreshes the registry from the durable store, applies the
// change in memory and writes the resulting state back.
type PluginService struct {
	registry *registry.Registry
	runner   *migration.Runner
	stores   PluginStores
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes reconcile, mutate and persist sequences within the process.
	mu sync.Mutex
}

// NewPluginService creates a plugin service.
func NewPluginService(reg *registry.Registry, runner *migration.Runner, stores PluginStores, logger *slog.Logger) *PluginService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginService{
		registry: reg,
		runner:   runner,
		stores:   stores,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Bootstrap registers the compile-time-known plugins and persists the
// default tenant's installed state for any plugin that has none yet. An
// OnLoad failure is logged; the plugin stays registered.
func (s *PluginService) Bootstrap(ctx context.Context, manifests ...domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range manifests {
		err := s.registry.Register(ctx, m)
		var hookErr *domain.HookError
		if errors.As(err, &hookErr) {
			s.logger.WarnContext(ctx, "plugin registered with failing onLoad hook", "plugin_id", m.ID, "error", err)
		} else if err != nil {
			return fmt.Errorf("registering plugin %s: %w", m.ID, err)
		}

		_, err = s.stores.States.Get(ctx, domain.DefaultTenantID, m.ID)
		if errors.Is(err, domain.ErrPluginNotInstalled) {
			st, _ := s.registry.State(domain.DefaultTenantID, m.ID)
			if err := s.stores.States.Save(ctx, st); err != nil {
				return fmt.Errorf("persisting default state of %s: %w", m.ID, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("reading default state of %s: %w", m.ID, err)
		}
	}
	return nil
}

// List returns every registered manifest in load order with the persisted
// states of tenantID. An empty tenantID lists manifests only.
func (s *PluginService) List(ctx context.Context, tenantID string) (PluginCatalog, error) {
	catalog := PluginCatalog{Plugins: s.registry.Plugins()}
	if tenantID == "" {
		return catalog, nil
	}

	states, err := s.stores.States.ListByTenant(ctx, tenantID)
	if err != nil {
		return PluginCatalog{}, fmt.Errorf("listing plugin states: %w", err)
	}
	catalog.States = states
	return catalog, nil
}

// Install creates the installed state of pluginID for tenantID. When the
// tenant holds no license for the plugin and the plugin offers a free tier,
// a free license is granted.
func (s *PluginService) Install(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.registry.Plugin(pluginID)
	if !ok {
		return domain.PluginState{}, domain.ErrPluginNotFound
	}
	if err := s.reconcile(ctx, tenantID); err != nil {
		return domain.PluginState{}, err
	}

	st, err := s.registry.Install(ctx, tenantID, pluginID)
	if err != nil {
		return domain.PluginState{}, err
	}

	if err := s.grantFreeTier(ctx, m, tenantID); err != nil {
		return domain.PluginState{}, err
	}

	if err := s.stores.States.Save(ctx, st); err != nil {
		return domain.PluginState{}, fmt.Errorf("persisting plugin state: %w", err)
	}
	return st, nil
}

func (s *PluginService) grantFreeTier(ctx context.Context, m domain.Manifest, tenantID string) error {
	if _, ok := m.Tier(domain.PlanFree); !ok {
		return nil
	}

	_, err := s.stores.Licenses.Get(ctx, tenantID, m.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrLicenseNotFound) {
		return fmt.Errorf("reading license: %w", err)
	}

	license, err := newLicense(m, tenantID, domain.PlanFree, nil, s.now())
	if err != nil {
		return err
	}
	if err := s.stores.Licenses.Upsert(ctx, license); err != nil {
		return fmt.Errorf("granting free license: %w", err)
	}
	s.logger.InfoContext(ctx, "free license granted", "tenant_id", tenantID, "plugin_id", m.ID)
	return nil
}

// Enable enables pluginID for tenantID and applies its pending migrations.
// Enabling an already enabled plugin is a no-op. When a migration fails the
// plugin is disabled again and the migration error is returned.
func (s *PluginService) Enable(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reconcile(ctx, tenantID); err != nil {
		return domain.PluginState{}, err
	}

	changed, err := s.registry.Enable(ctx, tenantID, pluginID)
	if err != nil {
		return s.persistAfterFailure(ctx, tenantID, pluginID, err)
	}
	if !changed {
		st, _ := s.registry.State(tenantID, pluginID)
		return st, nil
	}

	m, _ := s.registry.Plugin(pluginID)
	if _, err := s.runner.Apply(ctx, m); err != nil {
		if rerr := s.registry.Revert(ctx, tenantID, pluginID, err); rerr != nil {
			s.logger.ErrorContext(ctx, "reverting enable failed",
				"plugin_id", pluginID,
				"tenant_id", tenantID,
				"error", rerr,
			)
		}
		return s.persistAfterFailure(ctx, tenantID, pluginID, err)
	}

	return s.persist(ctx, tenantID, pluginID)
}

// Disable disables pluginID for tenantID. It fails with a
// *domain.DependentsError while a registered plugin depends on it.
func (s *PluginService) Disable(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reconcile(ctx, tenantID); err != nil {
		return domain.PluginState{}, err
	}

	if _, err := s.registry.Disable(ctx, tenantID, pluginID); err != nil {
		return s.persistAfterFailure(ctx, tenantID, pluginID, err)
	}
	return s.persist(ctx, tenantID, pluginID)
}

// UpdateConfig shallow-merges partial into the plugin's configuration.
func (s *PluginService) UpdateConfig(ctx context.Context, tenantID, pluginID string, partial map[string]any) (domain.PluginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reconcile(ctx, tenantID); err != nil {
		return domain.PluginState{}, err
	}

	if _, err := s.registry.UpdateConfig(ctx, tenantID, pluginID, partial); err != nil {
		return domain.PluginState{}, err
	}
	return s.persist(ctx, tenantID, pluginID)
}

// Uninstall removes pluginID from tenantID: the tenant's rows in the
// plugin's tables, its feature flags, license and state are deleted. When no
// tenant has the plugin installed anymore its migrations are rolled back and
// the manifest is unregistered.
func (s *PluginService) Uninstall(ctx context.Context, tenantID, pluginID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.registry.Plugin(pluginID)
	if !ok {
		return domain.ErrPluginNotFound
	}
	if err := s.reconcile(ctx, tenantID); err != nil {
		return err
	}

	if err := s.registry.Uninstall(ctx, tenantID, pluginID); err != nil {
		return err
	}

	for _, table := range m.TenantTables {
		if err := s.stores.Purger.PurgeTenantRows(ctx, table, tenantID); err != nil {
			return fmt.Errorf("purging plugin data: %w", err)
		}
	}
	if err := s.stores.Flags.DeleteForPlugin(ctx, tenantID, pluginID); err != nil {
		return fmt.Errorf("deleting feature flags: %w", err)
	}
	if err := s.stores.Licenses.Delete(ctx, tenantID, pluginID); err != nil {
		return fmt.Errorf("deleting license: %w", err)
	}
	if err := s.stores.States.Delete(ctx, tenantID, pluginID); err != nil {
		return fmt.Errorf("deleting plugin state: %w", err)
	}

	remaining, err := s.stores.States.CountInstalls(ctx, pluginID)
	if err != nil {
		return fmt.Errorf("counting plugin installs: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "last install removed, rolling back plugin", "plugin_id", pluginID)
	if _, err := s.runner.Rollback(ctx, m); err != nil {
		return err
	}
	return s.registry.Unregister(ctx, pluginID)
}

func (s *PluginService) reconcile(ctx context.Context, tenantID string) error {
	states, err := s.stores.States.ListByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading plugin states: %w", err)
	}
	s.registry.Reconcile(tenantID, states)
	return nil
}

func (s *PluginService) persist(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error) {
	st, ok := s.registry.State(tenantID, pluginID)
	if !ok {
		return domain.PluginState{}, domain.ErrPluginNotInstalled
	}
	if err := s.stores.States.Save(ctx, st); err != nil {
		return domain.PluginState{}, fmt.Errorf("persisting plugin state: %w", err)
	}
	return st, nil
}

// persistAfterFailure writes back whatever state the registry holds after a
// failed operation, then returns opErr.
func (s *PluginService) persistAfterFailure(ctx context.Context, tenantID, pluginID string, opErr error) (domain.PluginState, error) {
	st, ok := s.registry.State(tenantID, pluginID)
	if !ok {
		return domain.PluginState{}, opErr
	}
	if err := s.stores.States.Save(ctx, st); err != nil {
		s.logger.ErrorContext(ctx, "persisting plugin state after failure",
			"plugin_id", pluginID,
			"tenant_id", tenantID,
			"error", err,
		)
	}
	return st, opErr
}
