package mirror

import (
	"cmp"
	"slices"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// RouteEntry is a route with the plugin that contributes it.
type RouteEntry struct {
	PluginID string
	domain.Route
}

// NavEntry is a navigation item with its contributing plugin.
type NavEntry struct {
	PluginID string
	domain.NavItem
}

// SlotEntry is a slot component with its contributing plugin.
type SlotEntry struct {
	PluginID string
	domain.SlotContribution
}

// SettingsEntry is a settings panel with its contributing plugin.
type SettingsEntry struct {
	PluginID string
	domain.SettingsPanel
}

// TenantID is the tenant of the last successful sync, empty on the main domain.
func (m *Mirror) TenantID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tenantID
}

// SyncedAt reports when the last successful sync finished.
func (m *Mirror) SyncedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced
}

func (m *Mirror) Plugin(id string) (domain.Manifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := slices.IndexFunc(m.plugins, func(p domain.Manifest) bool { return p.ID == id })
	if i < 0 {
		return domain.Manifest{}, false
	}
	return m.plugins[i], true
}

func (m *Mirror) State(id string) (domain.PluginState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	return st.Clone(), ok
}

// Plugins returns every mirrored manifest in load order.
func (m *Mirror) Plugins() []domain.Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.plugins)
}

// EnabledPlugins returns the enabled manifests in load order.
func (m *Mirror) EnabledPlugins() []domain.Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabledLocked()
}

func (m *Mirror) enabledLocked() []domain.Manifest {
	var out []domain.Manifest
	for _, p := range m.plugins {
		if st, ok := m.states[p.ID]; ok && st.Status == domain.PluginEnabled {
			out = append(out, p)
		}
	}
	return out
}

// Routes returns the routes of enabled plugins in load order.
func (m *Mirror) Routes() []RouteEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RouteEntry
	for _, p := range m.enabledLocked() {
		for _, r := range p.Routes {
			out = append(out, RouteEntry{PluginID: p.ID, Route: r})
		}
	}
	return out
}

// Navigation returns the navigation items of enabled plugins sorted by
// order; items without one sort as domain.DefaultNavOrder. Ties keep load
// order.
func (m *Mirror) Navigation() []NavEntry {
	m.mu.RLock()
	var out []NavEntry
	for _, p := range m.enabledLocked() {
		for _, n := range p.Navigation {
			out = append(out, NavEntry{PluginID: p.ID, NavItem: n})
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b NavEntry) int { return cmp.Compare(a.SortKey(), b.SortKey()) })
	return out
}

// Slot returns the components placed in slot by enabled plugins, sorted by
// their order.
func (m *Mirror) Slot(slot string) []SlotEntry {
	m.mu.RLock()
	var out []SlotEntry
	for _, p := range m.enabledLocked() {
		for _, s := range p.Slots {
			if s.Slot == slot {
				out = append(out, SlotEntry{PluginID: p.ID, SlotContribution: s})
			}
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b SlotEntry) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// SettingsPanels returns the settings panels of enabled plugins in load order.
func (m *Mirror) SettingsPanels() []SettingsEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SettingsEntry
	for _, p := range m.enabledLocked() {
		if p.Settings != nil {
			out = append(out, SettingsEntry{PluginID: p.ID, SettingsPanel: *p.Settings})
		}
	}
	return out
}
