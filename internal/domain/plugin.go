package domain

import (
	"context"
	"regexp"
	"time"
)

// PluginStatus is the lifecycle state of a plugin for one tenant.
type PluginStatus string

const (
	PluginInstalled    PluginStatus = "installed"
	PluginEnabled      PluginStatus = "enabled"
	PluginDisabled     PluginStatus = "disabled"
	PluginError        PluginStatus = "error"
	PluginInstalling   PluginStatus = "installing"
	PluginUninstalling PluginStatus = "uninstalling"
)

// PluginEvent is an action that moves a plugin between statuses.
type PluginEvent string

const (
	PluginEventEnable    PluginEvent = "enable"
	PluginEventDisable   PluginEvent = "disable"
	PluginEventFail      PluginEvent = "fail"
	PluginEventUninstall PluginEvent = "uninstall"
)

// PluginTransition defines a valid status change.
type PluginTransition struct {
	Event PluginEvent
	Src   PluginStatus
	Dst   PluginStatus
}

// PluginTransitions is the plugin state machine:
// installed → enabled ⇄ disabled, any hook failure → error, everything → uninstalling.
var PluginTransitions = []PluginTransition{
	{Event: PluginEventEnable, Src: PluginInstalled, Dst: PluginEnabled},
	{Event: PluginEventEnable, Src: PluginDisabled, Dst: PluginEnabled},
	{Event: PluginEventEnable, Src: PluginError, Dst: PluginEnabled},
	{Event: PluginEventDisable, Src: PluginInstalled, Dst: PluginDisabled},
	{Event: PluginEventDisable, Src: PluginEnabled, Dst: PluginDisabled},
	{Event: PluginEventDisable, Src: PluginError, Dst: PluginDisabled},
	{Event: PluginEventFail, Src: PluginInstalled, Dst: PluginError},
	{Event: PluginEventFail, Src: PluginEnabled, Dst: PluginError},
	{Event: PluginEventFail, Src: PluginDisabled, Dst: PluginError},
	{Event: PluginEventFail, Src: PluginError, Dst: PluginError},
	{Event: PluginEventUninstall, Src: PluginInstalled, Dst: PluginUninstalling},
	{Event: PluginEventUninstall, Src: PluginEnabled, Dst: PluginUninstalling},
	{Event: PluginEventUninstall, Src: PluginDisabled, Dst: PluginUninstalling},
	{Event: PluginEventUninstall, Src: PluginError, Dst: PluginUninstalling},
}

// EventKind is the closed set of registry notifications.
type EventKind string

const (
	EventLoaded          EventKind = "loaded"
	EventEnabled         EventKind = "enabled"
	EventDisabled        EventKind = "disabled"
	EventUninstalled     EventKind = "uninstalled"
	EventError           EventKind = "error"
	EventSettingsChanged EventKind = "settings_changed"
)

// EventKinds lists every EventKind.
var EventKinds = []EventKind{
	EventLoaded, EventEnabled, EventDisabled, EventUninstalled, EventError, EventSettingsChanged,
}

// Event is emitted by the registry after a lifecycle change.
type Event struct {
	Kind     EventKind
	TenantID string
	PluginID string
	Status   PluginStatus
	Message  string
	At       time.Time
}

// ComponentKind is the closed set of renderable contributions.
type ComponentKind string

const (
	ComponentPage   ComponentKind = "page"
	ComponentWidget ComponentKind = "widget"
	ComponentForm   ComponentKind = "form"
	ComponentPanel  ComponentKind = "panel"
)

// ComponentRef points at a UI component by kind and an opaque handle that
// an external renderer resolves.
type ComponentRef struct {
	Kind   ComponentKind `json:"kind"`
	Handle string        `json:"handle"`
}

// Route is a page contributed to the admin UI.
type Route struct {
	Path       string       `json:"path"`
	Title      string       `json:"title"`
	Component  ComponentRef `json:"component"`
	Permission string       `json:"permission,omitempty"`
}

// NavItem is a navigation entry. Items without an Order sort last.
type NavItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Path   string `json:"path"`
	Icon   string `json:"icon,omitempty"`
	Order  *int   `json:"order,omitempty"`
	Parent string `json:"parent,omitempty"`
}

// DefaultNavOrder is the sort key of navigation items without an explicit order.
const DefaultNavOrder = 999

// SortKey returns the item's order, or DefaultNavOrder when unset.
func (n NavItem) SortKey() int {
	if n.Order == nil {
		return DefaultNavOrder
	}
	return *n.Order
}

// SlotContribution places a component into a named UI slot.
type SlotContribution struct {
	Slot      string       `json:"slot"`
	Component ComponentRef `json:"component"`
	Order     int          `json:"order,omitempty"`
}

// SettingsPanel is a plugin's settings page.
type SettingsPanel struct {
	Title     string       `json:"title"`
	Component ComponentRef `json:"component"`
}

// Permission is an RBAC key declared by a plugin.
type Permission struct {
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
}

// Migration is one versioned schema change owned by a plugin.
type Migration struct {
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Up          string `json:"-"`
	Down        string `json:"-"`
}

// Endpoint describes an API route a plugin serves.
type Endpoint struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Summary string `json:"summary,omitempty"`
}

// Tier is a subscription tier offered for a plugin.
type Tier struct {
	Plan      LicensePlan `json:"plan"`
	Features  []string    `json:"features"`
	TrialDays int         `json:"trialDays,omitempty"`
}

// Dependency declares that a plugin requires another, optionally within a version range.
type Dependency struct {
	PluginID   string `json:"pluginId"`
	MinVersion string `json:"minVersion,omitempty"`
	MaxVersion string `json:"maxVersion,omitempty"`
}

// HookContext identifies the plugin and tenant a lifecycle hook runs for.
type HookContext struct {
	TenantID string
	PluginID string
}

// Hook is a side-effecting lifecycle callback.
type Hook func(ctx context.Context, hc HookContext) error

// Hooks holds the optional lifecycle callbacks of a plugin.
type Hooks struct {
	OnLoad      Hook
	OnEnable    Hook
	OnDisable   Hook
	OnUninstall Hook
}

// Manifest is the static descriptor of a compile-time-known plugin.
type Manifest struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	Description  string             `json:"description,omitempty"`
	Priority     int                `json:"priority"`
	Dependencies []Dependency       `json:"dependencies,omitempty"`
	Conflicts    []string           `json:"conflicts,omitempty"`
	Routes       []Route            `json:"routes,omitempty"`
	Navigation   []NavItem          `json:"navigation,omitempty"`
	Slots        []SlotContribution `json:"slots,omitempty"`
	Settings     *SettingsPanel     `json:"settings,omitempty"`
	Permissions  []Permission       `json:"permissions,omitempty"`
	Migrations   []Migration        `json:"migrations,omitempty"`
	Endpoints    []Endpoint         `json:"endpoints,omitempty"`
	Tiers        []Tier             `json:"tiers,omitempty"`
	TenantTables []string           `json:"-"`
	Hooks        Hooks              `json:"-"`
}

var manifestIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*/[a-z0-9][a-z0-9._-]*$`)

// Validate checks the structural invariants of a manifest.
func (m Manifest) Validate() error {
	switch {
	case m.ID == "":
		return &ValidationError{Field: "id", Reason: "is required"}
	case m.Name == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case m.Version == "":
		return &ValidationError{Field: "version", Reason: "is required"}
	case !manifestIDPattern.MatchString(m.ID):
		return &ValidationError{Field: "id", Reason: "must match vendor/name"}
	}
	return nil
}

// DeclaresConflict reports whether m lists id among its conflicts.
func (m Manifest) DeclaresConflict(id string) bool {
	for _, c := range m.Conflicts {
		if c == id {
			return true
		}
	}
	return false
}

// DependsOn reports whether m lists id among its dependencies.
func (m Manifest) DependsOn(id string) bool {
	for _, d := range m.Dependencies {
		if d.PluginID == id {
			return true
		}
	}
	return false
}

// Tier returns the tier offered for plan.
func (m Manifest) Tier(plan LicensePlan) (Tier, bool) {
	for _, t := range m.Tiers {
		if t.Plan == plan {
			return t, true
		}
	}
	return Tier{}, false
}

// PluginState is the per-(tenant, plugin) lifecycle record.
type PluginState struct {
	TenantID    string
	PluginID    string
	Status      PluginStatus
	Version     string
	Config      map[string]any
	Error       string
	InstalledAt time.Time
	UpdatedAt   time.Time
	EnabledAt   *time.Time
	DisabledAt  *time.Time
}

// NewPluginState creates an installed state at version.
func NewPluginState(tenantID, pluginID, version string) PluginState {
	now := time.Now().UTC()
	return PluginState{
		TenantID:    tenantID,
		PluginID:    pluginID,
		Status:      PluginInstalled,
		Version:     version,
		Config:      map[string]any{},
		InstalledAt: now,
		UpdatedAt:   now,
	}
}

// Clone returns a copy that shares no mutable data with s.
func (s PluginState) Clone() PluginState {
	out := s
	out.Config = make(map[string]any, len(s.Config))
	for k, v := range s.Config {
		out.Config[k] = v
	}
	if s.EnabledAt != nil {
		t := *s.EnabledAt
		out.EnabledAt = &t
	}
	if s.DisabledAt != nil {
		t := *s.DisabledAt
		out.DisabledAt = &t
	}
	return out
}

// MigrationRecord marks a plugin migration version as applied.
type MigrationRecord struct {
	PluginID  string
	Version   string
	AppliedAt time.Time
}
