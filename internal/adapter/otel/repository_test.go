package otel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/pluginiq/internal/adapter/otel"
	"github.com/neomorfeo/pluginiq/internal/adapter/sqlite"
	"github.com/neomorfeo/pluginiq/internal/domain"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter, name string) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != name {
		t.Errorf("span name = %q, want %q", spans[0].Name, name)
	}
	return spans[0]
}

func TestTracingTenants_Create(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingTenants(newStore(t).Tenants())

	if err := repo.Create(context.Background(), domain.NewTenant("t-1", "Acme", "acme", "free")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	span := onlySpan(t, exporter, "TenantRepository.Create")
	assertAttribute(t, span, "tenant.id", "t-1")
	assertAttribute(t, span, "tenant.slug", "acme")
}

func TestTracingTenants_GetByID_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingTenants(newStore(t).Tenants())

	_, err := repo.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}

	span := onlySpan(t, exporter, "TenantRepository.GetByID")
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", span.Status.Code, codes.Error)
	}
	if len(span.Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestTracingTenants_GetByCustomDomain(t *testing.T) {
	exporter := setupTestTracer(t)
	store := newStore(t)
	tenant := domain.NewTenant("t-1", "Acme", "acme", "free")
	tenant.CustomDomain = "blog.acme.test"
	if err := store.Tenants().Create(context.Background(), tenant); err != nil {
		t.Fatalf("seeding tenant: %v", err)
	}

	got, err := adapter.NewTracingTenants(store.Tenants()).GetByCustomDomain(context.Background(), "blog.acme.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "t-1" {
		t.Errorf("ID = %q, want %q", got.ID, "t-1")
	}

	span := onlySpan(t, exporter, "TenantRepository.GetByCustomDomain")
	assertAttribute(t, span, "tenant.custom_domain", "blog.acme.test")
	if span.Status.Code == codes.Error {
		t.Error("successful lookup must not mark the span as failed")
	}
}

func TestTracingTenants_List_RecordsFilter(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingTenants(newStore(t).Tenants())

	status := domain.TenantActive
	tenants, err := repo.List(context.Background(), domain.ListFilter{Status: &status, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("got %d tenants, want the seeded default tenant", len(tenants))
	}

	span := onlySpan(t, exporter, "TenantRepository.List")
	assertAttribute(t, span, "filter.status", "active")
	assertAttribute(t, span, "filter.limit", "10")
	assertAttribute(t, span, "result.count", "1")
}

func TestTracingPluginStates(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingPluginStates(newStore(t).PluginStates())
	ctx := context.Background()

	st := domain.NewPluginState(domain.DefaultTenantID, "acme/notes", "1.0.0")
	if err := repo.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	n, err := repo.CountInstalls(ctx, "acme/notes")
	if err != nil {
		t.Fatalf("CountInstalls: %v", err)
	}
	if n != 1 {
		t.Errorf("CountInstalls = %d, want 1", n)
	}
	if _, err := repo.Get(ctx, domain.DefaultTenantID, "acme/missing"); !errors.Is(err, domain.ErrPluginNotInstalled) {
		t.Fatalf("Get: expected ErrPluginNotInstalled, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	assertAttribute(t, spans[0], "plugin.status", "installed")
	assertAttribute(t, spans[1], "result.count", "1")
	if spans[2].Status.Code != codes.Error {
		t.Errorf("Get span status = %v, want %v", spans[2].Status.Code, codes.Error)
	}
}

func TestTracingLicenses_ExpireBefore(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingLicenses(newStore(t).Licenses())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	license := domain.License{
		ID:        "l-1",
		TenantID:  domain.DefaultTenantID,
		PluginID:  "acme/notes",
		Plan:      domain.PlanTrial,
		Status:    domain.LicenseActive,
		ExpiresAt: &past,
		CreatedAt: past,
		UpdatedAt: past,
	}
	if err := repo.Upsert(ctx, license); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	n, err := repo.ExpireBefore(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d licenses, want 1", n)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	assertAttribute(t, spans[0], "license.plan", "trial")
	assertAttribute(t, spans[1], "result.count", "1")
}

// assertAttribute checks that a span has an attribute with the given key and value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			if got := attr.Value.Emit(); got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
