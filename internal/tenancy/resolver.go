// Package tenancy resolves the tenant addressed by a request host and
// evaluates which plugins that tenant is licensed to use.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// Resolution is the tenant context derived from a request. The zero value
// means no tenant was addressed.
type Resolution struct {
	Tenant   *domain.Tenant
	Licenses []domain.License

	licensed map[string]domain.License
	now      time.Time
}

// TenantID returns the resolved tenant id, or "" when there is none.
func (r Resolution) TenantID() string {
	if r.Tenant == nil {
		return ""
	}
	return r.Tenant.ID
}

// Found reports whether a tenant was resolved.
func (r Resolution) Found() bool { return r.Tenant != nil }

// LicensedPluginIDs returns the ids of every plugin with an active license.
func (r Resolution) LicensedPluginIDs() []string {
	ids := make([]string, 0, len(r.Licenses))
	for _, l := range r.Licenses {
		ids = append(ids, l.PluginID)
	}
	return ids
}

// LicensedPlugin reports whether the tenant holds an active license for pluginID.
func (r Resolution) LicensedPlugin(pluginID string) bool {
	_, ok := r.licensed[pluginID]
	return ok
}

// HasFeature reports whether the license for pluginID bundles feature.
func (r Resolution) HasFeature(pluginID, feature string) bool {
	l, ok := r.licensed[pluginID]
	return ok && l.Entitles(feature, r.now)
}

// NewResolution builds a resolution for tenant, keeping only the licenses
// active at now.
func NewResolution(tenant domain.Tenant, licenses []domain.License, now time.Time) Resolution {
	res := Resolution{
		Tenant:   &tenant,
		licensed: make(map[string]domain.License, len(licenses)),
		now:      now,
	}
	for _, l := range licenses {
		if !l.Active(now) {
			continue
		}
		res.Licenses = append(res.Licenses, l)
		res.licensed[l.PluginID] = l
	}
	return res
}

// Resolver maps request hosts to tenants.
type Resolver struct {
	tenants    domain.TenantRepository
	licenses   domain.LicenseRepository
	baseDomain string
	logger     *slog.Logger
	now        func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source used for license expiry checks.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver for hosts under baseDomain.
func NewResolver(tenants domain.TenantRepository, licenses domain.LicenseRepository, baseDomain string, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		tenants:    tenants,
		licenses:   licenses,
		baseDomain: baseDomain,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BaseDomain returns the domain tenant subdomains live under.
func (r *Resolver) BaseDomain() string { return r.baseDomain }

// Detect resolves the tenant addressed by host. A host that names no tenant,
// or names an unknown or inactive one, yields an empty Resolution and a nil
// error. Only store failures are returned as errors.
func (r *Resolver) Detect(ctx context.Context, host string) (Resolution, error) {
	c := ParseHost(host, r.baseDomain)

	var (
		tenant domain.Tenant
		err    error
	)
	switch c.Kind {
	case CandidateNone:
		return Resolution{}, nil
	case CandidateCustomDomain:
		tenant, err = r.tenants.GetByCustomDomain(ctx, c.Value)
		if errors.Is(err, domain.ErrTenantNotFound) {
			tenant, err = r.tenants.GetBySlug(ctx, c.Value)
		}
	case CandidateSlug:
		tenant, err = r.tenants.GetBySlug(ctx, c.Value)
	}
	if errors.Is(err, domain.ErrTenantNotFound) {
		r.logger.DebugContext(ctx, "no tenant for host", "host", host)
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("resolving tenant for host %q: %w", host, err)
	}
	if tenant.Status != domain.TenantActive {
		return Resolution{}, nil
	}

	return r.ForTenant(ctx, tenant)
}

// ForTenant builds the resolution of an already loaded tenant.
func (r *Resolver) ForTenant(ctx context.Context, tenant domain.Tenant) (Resolution, error) {
	licenses, err := r.licenses.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("loading licenses for tenant %s: %w", tenant.ID, err)
	}
	return NewResolution(tenant, licenses, r.now()), nil
}

type contextKey struct{}

// WithResolution returns a copy of ctx carrying res.
func WithResolution(ctx context.Context, res Resolution) context.Context {
	return context.WithValue(ctx, contextKey{}, res)
}

// FromContext returns the resolution stored in ctx, or the zero Resolution.
func FromContext(ctx context.Context) Resolution {
	res, _ := ctx.Value(contextKey{}).(Resolution)
	return res
}
