package domain

import (
	"context"
	"time"
)

// TenantRepository defines the persistence contract for tenants.
type TenantRepository interface {
	Create(ctx context.Context, tenant Tenant) error
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	GetByCustomDomain(ctx context.Context, domain string) (Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	Update(ctx context.Context, tenant Tenant) error
}

// ListFilter controls tenant listing.
type ListFilter struct {
	Status *TenantStatus
	Limit  int
	Offset int
}

// LicenseRepository defines the persistence contract for plugin licenses.
type LicenseRepository interface {
	Upsert(ctx context.Context, license License) error
	Get(ctx context.Context, tenantID, pluginID string) (License, error)
	ListByTenant(ctx context.Context, tenantID string) ([]License, error)
	Delete(ctx context.Context, tenantID, pluginID string) error
	ExpireBefore(ctx context.Context, now time.Time) (int, error)
}

// PluginStateRepository persists tenant-scoped plugin states. It is the
// source of truth the in-memory registry is reconciled against.
type PluginStateRepository interface {
	Save(ctx context.Context, state PluginState) error
	Get(ctx context.Context, tenantID, pluginID string) (PluginState, error)
	ListByTenant(ctx context.Context, tenantID string) ([]PluginState, error)
	Delete(ctx context.Context, tenantID, pluginID string) error
	CountInstalls(ctx context.Context, pluginID string) (int, error)
}

// FeatureFlagRepository persists per-tenant feature overrides.
type FeatureFlagRepository interface {
	Set(ctx context.Context, flag FeatureFlag) error
	Get(ctx context.Context, tenantID, pluginID, featureKey string) (FeatureFlag, bool, error)
	DeleteForPlugin(ctx context.Context, tenantID, pluginID string) error
}

// MigrationStore executes plugin SQL and tracks which versions are applied.
type MigrationStore interface {
	Exec(ctx context.Context, statement string) error
	IsApplied(ctx context.Context, pluginID, version string) (bool, error)
	MarkApplied(ctx context.Context, record MigrationRecord) error
	MarkReverted(ctx context.Context, pluginID, version string) error
}

// TenantDataPurger deletes a tenant's rows from a plugin-owned table.
type TenantDataPurger interface {
	PurgeTenantRows(ctx context.Context, table, tenantID string) error
}

// TransitionValidator decides the destination of a plugin status transition.
type TransitionValidator interface {
	Apply(ctx context.Context, current PluginStatus, event PluginEvent) (PluginStatus, error)
}

// EventPublisher defines the contract for emitting registry events outside the process.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
