package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// maxSlugAttempts bounds the numeric suffixes tried for one name.
const maxSlugAttempts = 100

// TenantService orchestrates tenant signup and lookup.
type TenantService struct {
	repo domain.TenantRepository
}

// NewTenantService creates a service with the given repository.
func NewTenantService(repo domain.TenantRepository) *TenantService {
	return &TenantService{repo: repo}
}

// Create persists a new active tenant. The slug is derived from name and
// disambiguated with a numeric suffix: acme, acme-2, acme-3 and so on.
func (s *TenantService) Create(ctx context.Context, name, plan, customDomain string) (domain.Tenant, error) {
	if name == "" {
		return domain.Tenant{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if plan == "" {
		plan = string(domain.PlanFree)
	}

	id, err := generateID()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("generating tenant id: %w", err)
	}

	base := domain.Slugify(name)
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		slug := base
		if attempt > 1 {
			slug = base + "-" + strconv.Itoa(attempt)
		}

		// Check slug availability before creating.
		if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrTenantNotFound) {
			return domain.Tenant{}, fmt.Errorf("checking slug %q: %w", slug, err)
		}

		tenant := domain.NewTenant(id, name, slug, plan)
		tenant.CustomDomain = customDomain

		err := s.repo.Create(ctx, tenant)
		var conflict *domain.SlugConflictError
		if errors.As(err, &conflict) {
			// Lost a race for this slug; try the next suffix.
			continue
		}
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("creating tenant: %w", err)
		}
		return tenant, nil
	}

	return domain.Tenant{}, &domain.SlugConflictError{Slug: base}
}

// GetByID returns a tenant by its unique identifier.
func (s *TenantService) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tenants matching the given filter.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}
