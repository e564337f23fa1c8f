package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/neomorfeo/pluginiq/internal/adapter/sqlite"
	"github.com/neomorfeo/pluginiq/internal/domain"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreate(t *testing.T, repo *sqlite.TenantRepository, tenant domain.Tenant) {
	t.Helper()
	if err := repo.Create(context.Background(), tenant); err != nil {
		t.Fatalf("mustCreate failed: %v", err)
	}
}

func mustUpdate(t *testing.T, repo *sqlite.TenantRepository, tenant domain.Tenant) {
	t.Helper()
	if err := repo.Update(context.Background(), tenant); err != nil {
		t.Fatalf("mustUpdate failed: %v", err)
	}
}

func TestDefaultTenantSeeded(t *testing.T) {
	repo := newTestStore(t).Tenants()

	got, err := repo.GetByID(context.Background(), domain.DefaultTenantID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Slug != "default" || got.Status != domain.TenantActive {
		t.Errorf("default tenant = %+v", got)
	}
}

func TestCreate_And_GetByID(t *testing.T) {
	repo := newTestStore(t).Tenants()
	ctx := context.Background()

	tenant := domain.NewTenant("t-1", "Acme Corp", "acme-corp", "pro")
	tenant.CustomDomain = "acme.example"

	if err := repo.Create(ctx, tenant); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Name != "Acme Corp" {
		t.Errorf("Name = %q, want %q", got.Name, "Acme Corp")
	}
	if got.Slug != "acme-corp" {
		t.Errorf("Slug = %q, want %q", got.Slug, "acme-corp")
	}
	if got.CustomDomain != "acme.example" {
		t.Errorf("CustomDomain = %q, want %q", got.CustomDomain, "acme.example")
	}
	if got.Status != domain.TenantActive {
		t.Errorf("Status = %q, want %q", got.Status, domain.TenantActive)
	}
	if got.Plan != "pro" {
		t.Errorf("Plan = %q, want %q", got.Plan, "pro")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := newTestStore(t).Tenants()

	_, err := repo.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestGetBySlug(t *testing.T) {
	repo := newTestStore(t).Tenants()

	mustCreate(t, repo, domain.NewTenant("t-1", "Acme", "acme", "free"))

	got, err := repo.GetBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if got.ID != "t-1" {
		t.Errorf("ID = %q, want %q", got.ID, "t-1")
	}
}

func TestGetByCustomDomain(t *testing.T) {
	repo := newTestStore(t).Tenants()
	ctx := context.Background()

	withDomain := domain.NewTenant("t-1", "Acme", "acme", "free")
	withDomain.CustomDomain = "customtenant.io"
	mustCreate(t, repo, withDomain)
	mustCreate(t, repo, domain.NewTenant("t-2", "Plain", "plain", "free"))

	got, err := repo.GetByCustomDomain(ctx, "customtenant.io")
	if err != nil {
		t.Fatalf("GetByCustomDomain failed: %v", err)
	}
	if got.ID != "t-1" {
		t.Errorf("ID = %q, want %q", got.ID, "t-1")
	}

	if _, err := repo.GetByCustomDomain(ctx, ""); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("empty domain: expected ErrTenantNotFound, got %v", err)
	}
}

func TestCreate_DuplicateSlug(t *testing.T) {
	repo := newTestStore(t).Tenants()

	mustCreate(t, repo, domain.NewTenant("t-1", "Acme", "acme", "free"))
	err := repo.Create(context.Background(), domain.NewTenant("t-2", "Acme 2", "acme", "pro"))

	var slugErr *domain.SlugConflictError
	if !errors.As(err, &slugErr) {
		t.Fatalf("expected SlugConflictError, got %v", err)
	}
	if slugErr.Slug != "acme" {
		t.Errorf("slug = %q, want %q", slugErr.Slug, "acme")
	}
}

func TestCreate_DuplicateCustomDomain(t *testing.T) {
	repo := newTestStore(t).Tenants()

	t1 := domain.NewTenant("t-1", "A", "a", "free")
	t1.CustomDomain = "shared.io"
	t2 := domain.NewTenant("t-2", "B", "b", "free")
	t2.CustomDomain = "shared.io"

	mustCreate(t, repo, t1)
	err := repo.Create(context.Background(), t2)
	if !errors.Is(err, domain.ErrCustomDomainTaken) {
		t.Fatalf("expected ErrCustomDomainTaken, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	repo := newTestStore(t).Tenants()
	ctx := context.Background()

	tenant := domain.NewTenant("t-1", "Acme", "acme", "free")
	mustCreate(t, repo, tenant)

	tenant.Status = domain.TenantSuspended
	tenant.Name = "Acme Updated"
	tenant.StripeCustomerID = "cus_123"

	if err := repo.Update(ctx, tenant); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "t-1")
	if got.Status != domain.TenantSuspended {
		t.Errorf("Status = %q, want %q", got.Status, domain.TenantSuspended)
	}
	if got.Name != "Acme Updated" {
		t.Errorf("Name = %q, want %q", got.Name, "Acme Updated")
	}
	if got.StripeCustomerID != "cus_123" {
		t.Errorf("StripeCustomerID = %q, want %q", got.StripeCustomerID, "cus_123")
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("UpdatedAt should not be before CreatedAt")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo := newTestStore(t).Tenants()

	err := repo.Update(context.Background(), domain.NewTenant("nonexistent", "X", "x", "free"))
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestList_All(t *testing.T) {
	repo := newTestStore(t).Tenants()

	mustCreate(t, repo, domain.NewTenant("t-1", "A", "a", "free"))
	mustCreate(t, repo, domain.NewTenant("t-2", "B", "b", "pro"))

	tenants, err := repo.List(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	// Two created plus the seeded default tenant.
	if len(tenants) != 3 {
		t.Errorf("got %d tenants, want 3", len(tenants))
	}
}

func TestList_FilterByStatus(t *testing.T) {
	repo := newTestStore(t).Tenants()

	mustCreate(t, repo, domain.NewTenant("t-1", "A", "a", "free"))

	t2 := domain.NewTenant("t-2", "B", "b", "pro")
	mustCreate(t, repo, t2)

	t2.Status = domain.TenantSuspended
	mustUpdate(t, repo, t2)

	status := domain.TenantSuspended
	tenants, err := repo.List(context.Background(), domain.ListFilter{Status: &status})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("got %d tenants, want 1", len(tenants))
	}
	if tenants[0].ID != "t-2" {
		t.Errorf("ID = %q, want %q", tenants[0].ID, "t-2")
	}
}

func TestList_Pagination(t *testing.T) {
	repo := newTestStore(t).Tenants()

	for i := range 5 {
		id := fmt.Sprintf("t-%d", i)
		slug := fmt.Sprintf("s-%d", i)
		mustCreate(t, repo, domain.NewTenant(id, "T", slug, "free"))
	}

	tenants, err := repo.List(context.Background(), domain.ListFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("got %d tenants, want 2", len(tenants))
	}

	rest, err := repo.List(context.Background(), domain.ListFilter{Offset: 4})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("got %d tenants after offset, want 2", len(rest))
	}
}
