// Package registry keeps the in-memory catalog of plugin manifests, their
// load order and their per-tenant lifecycle state.
//
// A Registry is an explicitly constructed value; the process owns one and
// hands it to whatever needs it. Its state map is a cache of the durable
// plugin_states table, refreshed through Reconcile.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

type stateKey struct {
	tenantID string
	pluginID string
}

// Registry is the plugin catalog and lifecycle state machine.
//
// Lifecycle operations are serialized; reads may run concurrently with them.
// Hooks run without the read lock held but must not call back into the
// Registry's mutating methods.
type Registry struct {
	validator domain.TransitionValidator
	logger    *slog.Logger
	bus       *Bus
	now       func() time.Time

	opMu sync.Mutex

	mu      sync.RWMutex
	plugins map[string]domain.Manifest
	order   []string
	states  map[stateKey]domain.PluginState
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry. A nil logger falls back to slog.Default().
func New(validator domain.TransitionValidator, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		validator: validator,
		logger:    logger,
		bus:       NewBus(logger),
		now:       func() time.Time { return time.Now().UTC() },
		plugins:   make(map[string]domain.Manifest),
		states:    make(map[stateKey]domain.PluginState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On subscribes to one kind of registry event.
func (r *Registry) On(kind domain.EventKind, fn Listener) (unsubscribe func()) {
	return r.bus.On(kind, fn)
}

// OnAll subscribes to every registry event.
func (r *Registry) OnAll(fn Listener) (unsubscribe func()) {
	return r.bus.OnAll(fn)
}

// Register validates m, checks it against the catalog and inserts it in load
// order. Validation, conflict and dependency failures leave the registry
// untouched. An OnLoad failure is returned as a *domain.HookError but the
// manifest stays registered.
func (r *Registry) Register(ctx context.Context, m domain.Manifest) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := r.checkCompatibleLocked(m); err != nil {
		r.mu.Unlock()
		return err
	}

	r.plugins[m.ID] = m
	r.insertOrderLocked(m)

	key := stateKey{tenantID: domain.DefaultTenantID, pluginID: m.ID}
	if _, ok := r.states[key]; !ok {
		st := domain.NewPluginState(domain.DefaultTenantID, m.ID, m.Version)
		st.InstalledAt, st.UpdatedAt = r.now(), r.now()
		r.states[key] = st
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "plugin registered",
		"plugin_id", m.ID,
		"version", m.Version,
		"priority", m.Priority,
	)

	hc := domain.HookContext{TenantID: domain.DefaultTenantID, PluginID: m.ID}
	if err := r.callHook(ctx, "onLoad", m.Hooks.OnLoad, hc); err != nil {
		r.logger.ErrorContext(ctx, "plugin onLoad hook failed", "plugin_id", m.ID, "error", err)
		r.emit(ctx, domain.EventError, domain.DefaultTenantID, m.ID, "", err.Error())
		return err
	}

	r.emit(ctx, domain.EventLoaded, domain.DefaultTenantID, m.ID, domain.PluginInstalled, "")
	return nil
}

func (r *Registry) checkCompatibleLocked(m domain.Manifest) error {
	for _, id := range r.order {
		if id == m.ID {
			continue
		}
		other := r.plugins[id]
		if m.DeclaresConflict(id) || other.DeclaresConflict(m.ID) {
			return &domain.ConflictError{PluginID: m.ID, With: id}
		}
	}

	for _, dep := range m.Dependencies {
		target, ok := r.plugins[dep.PluginID]
		if !ok {
			return &domain.DependencyError{PluginID: m.ID, Dependency: dep}
		}
		if !dep.Satisfies(target.Version) {
			return &domain.DependencyError{PluginID: m.ID, Dependency: dep, Found: target.Version}
		}
	}
	return nil
}

// insertOrderLocked places m before the first plugin of strictly lower
// priority, so equal priorities keep registration order.
func (r *Registry) insertOrderLocked(m domain.Manifest) {
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == m.ID })

	idx := len(r.order)
	for i, id := range r.order {
		if r.plugins[id].Priority < m.Priority {
			idx = i
			break
		}
	}
	r.order = slices.Insert(r.order, idx, m.ID)
}

// Install creates an installed state for tenantID if none exists and returns
// the current state.
func (r *Registry) Install(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.plugins[pluginID]
	if !ok {
		return domain.PluginState{}, domain.ErrPluginNotFound
	}

	key := stateKey{tenantID: tenantID, pluginID: pluginID}
	if st, ok := r.states[key]; ok {
		return st.Clone(), nil
	}

	st := domain.NewPluginState(tenantID, pluginID, m.Version)
	st.InstalledAt, st.UpdatedAt = r.now(), r.now()
	r.states[key] = st

	r.logger.InfoContext(ctx, "plugin installed", "plugin_id", pluginID, "tenant_id", tenantID)
	return st.Clone(), nil
}

// Enable moves a plugin to enabled for tenantID. It reports false without
// invoking OnEnable when the plugin is already enabled. An OnEnable failure
// leaves the plugin in the error status and is returned as a *domain.HookError.
func (r *Registry) Enable(ctx context.Context, tenantID, pluginID string) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	m, st, err := r.lookup(tenantID, pluginID)
	if err != nil {
		return false, err
	}
	if st.Status == domain.PluginEnabled {
		return false, nil
	}

	dst, err := r.validator.Apply(ctx, st.Status, domain.PluginEventEnable)
	if err != nil {
		return false, err
	}

	hc := domain.HookContext{TenantID: tenantID, PluginID: pluginID}
	if err := r.callHook(ctx, "onEnable", m.Hooks.OnEnable, hc); err != nil {
		r.fail(ctx, st, err)
		return false, err
	}

	now := r.now()
	st.Status = dst
	st.Error = ""
	st.Version = m.Version
	st.EnabledAt = &now
	st.UpdatedAt = now
	r.store(st)

	r.logger.InfoContext(ctx, "plugin enabled", "plugin_id", pluginID, "tenant_id", tenantID)
	r.emit(ctx, domain.EventEnabled, tenantID, pluginID, dst, "")
	return true, nil
}

// Disable moves a plugin to disabled for tenantID. It fails with a
// *domain.DependentsError while any registered plugin depends on it.
func (r *Registry) Disable(ctx context.Context, tenantID, pluginID string) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.disable(ctx, tenantID, pluginID, true, "")
}

// Revert undoes an Enable whose follow-up work failed. The plugin goes back
// to disabled regardless of its dependents, and cause is kept as the state's
// error message so a later Enable starts over.
func (r *Registry) Revert(ctx context.Context, tenantID, pluginID string, cause error) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.disable(ctx, tenantID, pluginID, false, msg)
	return err
}

func (r *Registry) disable(ctx context.Context, tenantID, pluginID string, checkDependents bool, cause string) (bool, error) {
	m, st, err := r.lookup(tenantID, pluginID)
	if err != nil {
		return false, err
	}
	if st.Status == domain.PluginDisabled {
		return false, nil
	}

	if checkDependents {
		if dependents := r.Dependents(pluginID); len(dependents) > 0 {
			return false, &domain.DependentsError{PluginID: pluginID, Dependents: dependents}
		}
	}

	dst, err := r.validator.Apply(ctx, st.Status, domain.PluginEventDisable)
	if err != nil {
		return false, err
	}

	hc := domain.HookContext{TenantID: tenantID, PluginID: pluginID}
	if err := r.callHook(ctx, "onDisable", m.Hooks.OnDisable, hc); err != nil {
		r.fail(ctx, st, err)
		return false, err
	}

	now := r.now()
	st.Status = dst
	st.Error = cause
	st.DisabledAt = &now
	st.UpdatedAt = now
	r.store(st)

	r.logger.InfoContext(ctx, "plugin disabled", "plugin_id", pluginID, "tenant_id", tenantID, "reverted", cause != "")
	r.emit(ctx, domain.EventDisabled, tenantID, pluginID, dst, cause)
	return true, nil
}

// Uninstall drops the cached state of pluginID for tenantID. The manifest
// stays registered; see Unregister.
func (r *Registry) Uninstall(ctx context.Context, tenantID, pluginID string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	_, st, err := r.lookup(tenantID, pluginID)
	if err != nil {
		return err
	}
	if _, err := r.validator.Apply(ctx, st.Status, domain.PluginEventUninstall); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.states, stateKey{tenantID: tenantID, pluginID: pluginID})
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "plugin uninstalled", "plugin_id", pluginID, "tenant_id", tenantID)
	r.emit(ctx, domain.EventUninstalled, tenantID, pluginID, "", "")
	return nil
}

// Unregister runs OnUninstall and removes the manifest, every tenant's state
// and the load-order entry. OnUninstall failures are logged only.
func (r *Registry) Unregister(ctx context.Context, pluginID string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	m, ok := r.plugins[pluginID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrPluginNotFound
	}

	hc := domain.HookContext{TenantID: domain.DefaultTenantID, PluginID: pluginID}
	if err := r.callHook(ctx, "onUninstall", m.Hooks.OnUninstall, hc); err != nil {
		r.logger.ErrorContext(ctx, "plugin onUninstall hook failed", "plugin_id", pluginID, "error", err)
		r.emit(ctx, domain.EventError, domain.DefaultTenantID, pluginID, "", err.Error())
	}

	r.mu.Lock()
	delete(r.plugins, pluginID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == pluginID })
	maps.DeleteFunc(r.states, func(k stateKey, _ domain.PluginState) bool { return k.pluginID == pluginID })
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "plugin unregistered", "plugin_id", pluginID)
	r.emit(ctx, domain.EventUninstalled, domain.DefaultTenantID, pluginID, "", "")
	return nil
}

// Reconcile replaces the cached states of tenantID with states loaded from
// the durable store.
func (r *Registry) Reconcile(tenantID string, states []domain.PluginState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maps.DeleteFunc(r.states, func(k stateKey, _ domain.PluginState) bool { return k.tenantID == tenantID })
	for _, st := range states {
		st.TenantID = tenantID
		r.states[stateKey{tenantID: tenantID, pluginID: st.PluginID}] = st.Clone()
	}
}

// UpdateConfig shallow-merges partial into the plugin's config and returns
// the updated state.
func (r *Registry) UpdateConfig(ctx context.Context, tenantID, pluginID string, partial map[string]any) (domain.PluginState, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	_, st, err := r.lookup(tenantID, pluginID)
	if err != nil {
		return domain.PluginState{}, err
	}

	if st.Config == nil {
		st.Config = make(map[string]any, len(partial))
	}
	maps.Copy(st.Config, partial)
	st.UpdatedAt = r.now()
	r.store(st)

	r.emit(ctx, domain.EventSettingsChanged, tenantID, pluginID, st.Status, "")
	return st.Clone(), nil
}

// Plugin returns the registered manifest for id.
func (r *Registry) Plugin(id string) (domain.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.plugins[id]
	return m, ok
}

// State returns the cached state of pluginID for tenantID.
func (r *Registry) State(tenantID, pluginID string) (domain.PluginState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[stateKey{tenantID: tenantID, pluginID: pluginID}]
	if !ok {
		return domain.PluginState{}, false
	}
	return st.Clone(), true
}

// States returns the cached states of tenantID in load order.
func (r *Registry) States(tenantID string) []domain.PluginState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PluginState, 0, len(r.order))
	for _, id := range r.order {
		if st, ok := r.states[stateKey{tenantID: tenantID, pluginID: id}]; ok {
			out = append(out, st.Clone())
		}
	}
	return out
}

// Plugins returns every registered manifest in load order.
func (r *Registry) Plugins() []domain.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Manifest, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// EnabledPlugins returns the manifests enabled for tenantID in load order.
func (r *Registry) EnabledPlugins(tenantID string) []domain.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Manifest
	for _, id := range r.order {
		st, ok := r.states[stateKey{tenantID: tenantID, pluginID: id}]
		if ok && st.Status == domain.PluginEnabled {
			out = append(out, r.plugins[id])
		}
	}
	return out
}

// Dependents returns the ids of registered plugins that depend on pluginID,
// in load order.
func (r *Registry) Dependents(pluginID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, id := range r.order {
		if id != pluginID && r.plugins[id].DependsOn(pluginID) {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) lookup(tenantID, pluginID string) (domain.Manifest, domain.PluginState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.plugins[pluginID]
	if !ok {
		return domain.Manifest{}, domain.PluginState{}, domain.ErrPluginNotFound
	}
	st, ok := r.states[stateKey{tenantID: tenantID, pluginID: pluginID}]
	if !ok {
		return domain.Manifest{}, domain.PluginState{}, domain.ErrPluginNotInstalled
	}
	return m, st.Clone(), nil
}

func (r *Registry) store(st domain.PluginState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[stateKey{tenantID: st.TenantID, pluginID: st.PluginID}] = st
}

// fail records a hook failure on st and emits an error event.
func (r *Registry) fail(ctx context.Context, st domain.PluginState, err error) {
	dst, verr := r.validator.Apply(ctx, st.Status, domain.PluginEventFail)
	if verr != nil {
		dst = domain.PluginError
	}
	st.Status = dst
	st.Error = err.Error()
	st.UpdatedAt = r.now()
	r.store(st)

	r.logger.ErrorContext(ctx, "plugin hook failed",
		"plugin_id", st.PluginID,
		"tenant_id", st.TenantID,
		"error", err,
	)
	r.emit(ctx, domain.EventError, st.TenantID, st.PluginID, dst, err.Error())
}

// callHook runs hook, converting a panic into an error.
func (r *Registry) callHook(ctx context.Context, name string, hook domain.Hook, hc domain.HookContext) (err error) {
	if hook == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = &domain.HookError{PluginID: hc.PluginID, Hook: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if herr := hook(ctx, hc); herr != nil {
		return &domain.HookError{PluginID: hc.PluginID, Hook: name, Err: herr}
	}
	return nil
}

func (r *Registry) emit(ctx context.Context, kind domain.EventKind, tenantID, pluginID string, status domain.PluginStatus, msg string) {
	r.bus.Emit(ctx, domain.Event{
		Kind:     kind,
		TenantID: tenantID,
		PluginID: pluginID,
		Status:   status,
		Message:  msg,
		At:       r.now(),
	})
}
