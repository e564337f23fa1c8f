// Package mirror keeps a client-side copy of one tenant's plugin registry.
//
// The mirror is synchronised by polling GET /api/plugins; the server never
// pushes. Each Sync diffs the fresh snapshot against the previous one and
// emits the same typed events as the server registry on a local bus, so UI
// composition code can react to lifecycle changes. Route, navigation, slot
// and settings contributions are aggregated from enabled plugins only.
package mirror

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/registry"
)

// Mirror is a polled, read-mostly replica of a tenant's plugin registry.
type Mirror struct {
	api    *apiClient
	bus    *registry.Bus
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	tenantID string
	plugins  []domain.Manifest // load order as served
	states   map[string]domain.PluginState
	synced   time.Time
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithHost sets the Host header sent to the server, selecting the tenant.
func WithHost(host string) Option {
	return func(m *Mirror) { m.api.host = host }
}

// WithToken authenticates lifecycle actions with a bearer token.
func WithToken(token string) Option {
	return func(m *Mirror) { m.api.token = token }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Mirror) { m.api.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// New creates an empty mirror of the server at baseURL. Call Sync to load it.
func New(baseURL string, opts ...Option) *Mirror {
	m := &Mirror{
		api:    &apiClient{baseURL: baseURL, http: http.DefaultClient},
		logger: slog.Default(),
		now:    time.Now,
		states: map[string]domain.PluginState{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bus = registry.NewBus(m.logger)
	return m
}

// On subscribes fn to mirror events of one kind.
func (m *Mirror) On(kind domain.EventKind, fn registry.Listener) (unsubscribe func()) {
	return m.bus.On(kind, fn)
}

// OnAll subscribes fn to every mirror event.
func (m *Mirror) OnAll(fn registry.Listener) (unsubscribe func()) {
	return m.bus.OnAll(fn)
}

// Sync fetches the current catalog and states, replaces the local copy and
// emits an event for every observed change. On error the local copy is left
// untouched.
func (m *Mirror) Sync(ctx context.Context) error {
	snap, err := m.api.list(ctx)
	if err != nil {
		return err
	}

	states := make(map[string]domain.PluginState, len(snap.States))
	for _, st := range snap.States {
		states[st.PluginID] = st
	}

	m.mu.Lock()
	events := diff(m.plugins, m.states, snap.Plugins, states, snap.TenantID, m.now().UTC())
	m.tenantID = snap.TenantID
	m.plugins = snap.Plugins
	m.states = states
	m.synced = m.now()
	m.mu.Unlock()

	for _, e := range events {
		m.bus.Emit(ctx, e)
	}
	return nil
}

// Poll calls Sync every interval until ctx is done. Sync failures are
// logged and retried on the next tick.
func (m *Mirror) Poll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
			m.logger.WarnContext(ctx, "plugin mirror sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// diff derives the events that turn the old snapshot into the new one.
func diff(oldPlugins []domain.Manifest, oldStates map[string]domain.PluginState,
	newPlugins []domain.Manifest, newStates map[string]domain.PluginState,
	tenantID string, at time.Time,
) []domain.Event {
	var events []domain.Event
	add := func(kind domain.EventKind, pluginID string, status domain.PluginStatus, msg string) {
		events = append(events, domain.Event{
			Kind: kind, TenantID: tenantID, PluginID: pluginID, Status: status, Message: msg, At: at,
		})
	}

	known := make(map[string]bool, len(oldPlugins))
	for _, p := range oldPlugins {
		known[p.ID] = true
	}

	for _, p := range newPlugins {
		if !known[p.ID] {
			add(domain.EventLoaded, p.ID, "", "")
		}

		cur, hasCur := newStates[p.ID]
		prev, hadPrev := oldStates[p.ID]
		switch {
		case !hasCur && hadPrev:
			add(domain.EventUninstalled, p.ID, "", "")
		case !hasCur:
		case !hadPrev || prev.Status != cur.Status:
			switch cur.Status {
			case domain.PluginEnabled:
				add(domain.EventEnabled, p.ID, cur.Status, "")
			case domain.PluginDisabled:
				add(domain.EventDisabled, p.ID, cur.Status, "")
			case domain.PluginError:
				add(domain.EventError, p.ID, cur.Status, cur.Error)
			}
		case !reflect.DeepEqual(prev.Config, cur.Config):
			add(domain.EventSettingsChanged, p.ID, cur.Status, "")
		}
	}

	for _, p := range oldPlugins {
		if !slices.ContainsFunc(newPlugins, func(n domain.Manifest) bool { return n.ID == p.ID }) {
			add(domain.EventUninstalled, p.ID, "", "")
		}
	}
	return events
}

// Install installs pluginID for the mirrored tenant and resynchronises.
func (m *Mirror) Install(ctx context.Context, pluginID string) error {
	return m.act(ctx, http.MethodPost, "/api/plugins/install", map[string]any{"pluginId": pluginID})
}

// Enable enables pluginID and resynchronises.
func (m *Mirror) Enable(ctx context.Context, pluginID string) error {
	return m.act(ctx, http.MethodPost, "/api/plugins/enable", map[string]any{"pluginId": pluginID})
}

// Disable disables pluginID and resynchronises.
func (m *Mirror) Disable(ctx context.Context, pluginID string) error {
	return m.act(ctx, http.MethodPost, "/api/plugins/disable", map[string]any{"pluginId": pluginID})
}

// Uninstall uninstalls pluginID and resynchronises.
func (m *Mirror) Uninstall(ctx context.Context, pluginID string) error {
	return m.act(ctx, http.MethodPost, "/api/plugins/uninstall", map[string]any{"pluginId": pluginID})
}

// UpdateConfig merges partial into pluginID's configuration and resynchronises.
func (m *Mirror) UpdateConfig(ctx context.Context, pluginID string, partial map[string]any) error {
	return m.act(ctx, http.MethodPatch, "/api/plugins/config", map[string]any{"pluginId": pluginID, "config": partial})
}

// act sends a lifecycle request. The mirror is resynchronised even when the
// server rejects the action, since a failed enable can still change state.
func (m *Mirror) act(ctx context.Context, method, path string, body map[string]any) error {
	err := m.api.do(ctx, method, path, body, nil)
	if serr := m.Sync(ctx); serr != nil && err == nil {
		return serr
	}
	return err
}
