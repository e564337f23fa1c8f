package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/pluginiq/internal/adapter/otel"

func tenantAttr(id string) attribute.KeyValue { return attribute.String("tenant.id", id) }
func pluginAttr(id string) attribute.KeyValue { return attribute.String("plugin.id", id) }

// finish records err on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TracingTenants wraps a domain.TenantRepository with OpenTelemetry tracing.
type TracingTenants struct {
	next   domain.TenantRepository
	tracer trace.Tracer
}

var _ domain.TenantRepository = (*TracingTenants)(nil)

// NewTracingTenants creates a tracing decorator around the given repository.
func NewTracingTenants(next domain.TenantRepository) *TracingTenants {
	return &TracingTenants{next: next, tracer: otel.Tracer(tracerName)}
}

func (r *TracingTenants) Create(ctx context.Context, tenant domain.Tenant) (err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Create",
		trace.WithAttributes(tenantAttr(tenant.ID), attribute.String("tenant.slug", tenant.Slug)))
	defer func() { finish(span, err) }()
	return r.next.Create(ctx, tenant)
}

func (r *TracingTenants) GetByID(ctx context.Context, id string) (_ domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetByID", trace.WithAttributes(tenantAttr(id)))
	defer func() { finish(span, err) }()
	return r.next.GetByID(ctx, id)
}

func (r *TracingTenants) GetBySlug(ctx context.Context, slug string) (_ domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetBySlug",
		trace.WithAttributes(attribute.String("tenant.slug", slug)))
	defer func() { finish(span, err) }()
	return r.next.GetBySlug(ctx, slug)
}

func (r *TracingTenants) GetByCustomDomain(ctx context.Context, host string) (_ domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetByCustomDomain",
		trace.WithAttributes(attribute.String("tenant.custom_domain", host)))
	defer func() { finish(span, err) }()
	return r.next.GetByCustomDomain(ctx, host)
}

func (r *TracingTenants) List(ctx context.Context, filter domain.ListFilter) (tenants []domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer func() { finish(span, err) }()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}
	tenants, err = r.next.List(ctx, filter)
	span.SetAttributes(attribute.Int("result.count", len(tenants)))
	return tenants, err
}

func (r *TracingTenants) Update(ctx context.Context, tenant domain.Tenant) (err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Update",
		trace.WithAttributes(tenantAttr(tenant.ID), attribute.String("tenant.status", string(tenant.Status))))
	defer func() { finish(span, err) }()
	return r.next.Update(ctx, tenant)
}

// TracingPluginStates wraps a domain.PluginStateRepository with tracing.
type TracingPluginStates struct {
	next   domain.PluginStateRepository
	tracer trace.Tracer
}

var _ domain.PluginStateRepository = (*TracingPluginStates)(nil)

func NewTracingPluginStates(next domain.PluginStateRepository) *TracingPluginStates {
	return &TracingPluginStates{next: next, tracer: otel.Tracer(tracerName)}
}

func (r *TracingPluginStates) Save(ctx context.Context, st domain.PluginState) (err error) {
	ctx, span := r.tracer.Start(ctx, "PluginStateRepository.Save",
		trace.WithAttributes(
			tenantAttr(st.TenantID),
			pluginAttr(st.PluginID),
			attribute.String("plugin.status", string(st.Status)),
		),
	)
	defer func() { finish(span, err) }()
	return r.next.Save(ctx, st)
}

func (r *TracingPluginStates) Get(ctx context.Context, tenantID, pluginID string) (_ domain.PluginState, err error) {
	ctx, span := r.tracer.Start(ctx, "PluginStateRepository.Get",
		trace.WithAttributes(tenantAttr(tenantID), pluginAttr(pluginID)))
	defer func() { finish(span, err) }()
	return r.next.Get(ctx, tenantID, pluginID)
}

func (r *TracingPluginStates) ListByTenant(ctx context.Context, tenantID string) (states []domain.PluginState, err error) {
	ctx, span := r.tracer.Start(ctx, "PluginStateRepository.ListByTenant",
		trace.WithAttributes(tenantAttr(tenantID)))
	defer func() { finish(span, err) }()

	states, err = r.next.ListByTenant(ctx, tenantID)
	span.SetAttributes(attribute.Int("result.count", len(states)))
	return states, err
}

func (r *TracingPluginStates) Delete(ctx context.Context, tenantID, pluginID string) (err error) {
	ctx, span := r.tracer.Start(ctx, "PluginStateRepository.Delete",
		trace.WithAttributes(tenantAttr(tenantID), pluginAttr(pluginID)))
	defer func() { finish(span, err) }()
	return r.next.Delete(ctx, tenantID, pluginID)
}

func (r *TracingPluginStates) CountInstalls(ctx context.Context, pluginID string) (n int, err error) {
	ctx, span := r.tracer.Start(ctx, "PluginStateRepository.CountInstalls",
		trace.WithAttributes(pluginAttr(pluginID)))
	defer func() { finish(span, err) }()

	n, err = r.next.CountInstalls(ctx, pluginID)
	span.SetAttributes(attribute.Int("result.count", n))
	return n, err
}

// TracingLicenses wraps a domain.LicenseRepository with tracing.
type TracingLicenses struct {
	next   domain.LicenseRepository
	tracer trace.Tracer
}

var _ domain.LicenseRepository = (*TracingLicenses)(nil)

func NewTracingLicenses(next domain.LicenseRepository) *TracingLicenses {
	return &TracingLicenses{next: next, tracer: otel.Tracer(tracerName)}
}

func (r *TracingLicenses) Upsert(ctx context.Context, l domain.License) (err error) {
	ctx, span := r.tracer.Start(ctx, "LicenseRepository.Upsert",
		trace.WithAttributes(
			tenantAttr(l.TenantID),
			pluginAttr(l.PluginID),
			attribute.String("license.plan", string(l.Plan)),
			attribute.String("license.status", string(l.Status)),
		),
	)
	defer func() { finish(span, err) }()
	return r.next.Upsert(ctx, l)
}

func (r *TracingLicenses) Get(ctx context.Context, tenantID, pluginID string) (_ domain.License, err error) {
	ctx, span := r.tracer.Start(ctx, "LicenseRepository.Get",
		trace.WithAttributes(tenantAttr(tenantID), pluginAttr(pluginID)))
	defer func() { finish(span, err) }()
	return r.next.Get(ctx, tenantID, pluginID)
}

func (r *TracingLicenses) ListByTenant(ctx context.Context, tenantID string) (licenses []domain.License, err error) {
	ctx, span := r.tracer.Start(ctx, "LicenseRepository.ListByTenant",
		trace.WithAttributes(tenantAttr(tenantID)))
	defer func() { finish(span, err) }()

	licenses, err = r.next.ListByTenant(ctx, tenantID)
	span.SetAttributes(attribute.Int("result.count", len(licenses)))
	return licenses, err
}

func (r *TracingLicenses) Delete(ctx context.Context, tenantID, pluginID string) (err error) {
	ctx, span := r.tracer.Start(ctx, "LicenseRepository.Delete",
		trace.WithAttributes(tenantAttr(tenantID), pluginAttr(pluginID)))
	defer func() { finish(span, err) }()
	return r.next.Delete(ctx, tenantID, pluginID)
}

func (r *TracingLicenses) ExpireBefore(ctx context.Context, now time.Time) (n int, err error) {
	ctx, span := r.tracer.Start(ctx, "LicenseRepository.ExpireBefore",
		trace.WithAttributes(attribute.String("cutoff", now.UTC().Format(time.RFC3339))))
	defer func() { finish(span, err) }()

	n, err = r.next.ExpireBefore(ctx, now)
	span.SetAttributes(attribute.Int("result.count", n))
	return n, err
}
