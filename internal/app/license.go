package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/registry"
)

// LicenseService grants and revokes plugin licenses and manages the
// per-tenant feature flag overrides.
type LicenseService struct {
	registry *registry.Registry
	tenants  domain.TenantRepository
	licenses domain.LicenseRepository
	flags    domain.FeatureFlagRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewLicenseService creates a license service.
func NewLicenseService(reg *registry.Registry, tenants domain.TenantRepository, licenses domain.LicenseRepository, flags domain.FeatureFlagRepository, logger *slog.Logger) *LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseService{
		registry: reg,
		tenants:  tenants,
		licenses: licenses,
		flags:    flags,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *LicenseService) SetClock(now func() time.Time) { s.now = now }

// Grant creates or replaces the license of tenantID for pluginID. The tier's
// feature list is copied into the license. A trial without an explicit
// expiry runs for the tier's trial days.
func (s *LicenseService) Grant(ctx context.Context, tenantID, pluginID string, plan domain.LicensePlan, expiresAt *time.Time) (domain.License, error) {
	m, ok := s.registry.Plugin(pluginID)
	if !ok {
		return domain.License{}, domain.ErrPluginNotFound
	}
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return domain.License{}, err
	}

	license, err := newLicense(m, tenantID, plan, expiresAt, s.now())
	if err != nil {
		return domain.License{}, err
	}

	if existing, err := s.licenses.Get(ctx, tenantID, pluginID); err == nil {
		license.ID = existing.ID
		license.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, domain.ErrLicenseNotFound) {
		return domain.License{}, fmt.Errorf("reading license: %w", err)
	}

	if err := s.licenses.Upsert(ctx, license); err != nil {
		return domain.License{}, fmt.Errorf("granting license: %w", err)
	}

	s.logger.InfoContext(ctx, "license granted",
		"tenant_id", tenantID,
		"plugin_id", pluginID,
		"plan", string(plan),
	)
	return license, nil
}

// Revoke cancels the license of tenantID for pluginID.
func (s *LicenseService) Revoke(ctx context.Context, tenantID, pluginID string) (domain.License, error) {
	license, err := s.licenses.Get(ctx, tenantID, pluginID)
	if err != nil {
		return domain.License{}, err
	}

	license.Status = domain.LicenseCanceled
	license.UpdatedAt = s.now()
	if err := s.licenses.Upsert(ctx, license); err != nil {
		return domain.License{}, fmt.Errorf("revoking license: %w", err)
	}

	s.logger.InfoContext(ctx, "license revoked", "tenant_id", tenantID, "plugin_id", pluginID)
	return license, nil
}

// SweepExpired marks every active license past its expiry as expired.
func (s *LicenseService) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.licenses.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired licenses swept", "count", n)
	}
	return n, nil
}

// Licenses returns the licenses of tenantID that are active now.
func (s *LicenseService) Licenses(ctx context.Context, tenantID string) ([]domain.License, error) {
	all, err := s.licenses.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return slices.DeleteFunc(all, func(l domain.License) bool { return !l.Active(now) }), nil
}

// SetFeatureFlag switches a plugin feature on or off for one tenant.
func (s *LicenseService) SetFeatureFlag(ctx context.Context, flag domain.FeatureFlag) error {
	if _, ok := s.registry.Plugin(flag.PluginID); !ok {
		return domain.ErrPluginNotFound
	}
	if flag.FeatureKey == "" {
		return &domain.ValidationError{Field: "featureKey", Reason: "is required"}
	}
	if _, err := s.tenants.GetByID(ctx, flag.TenantID); err != nil {
		return err
	}
	if err := s.flags.Set(ctx, flag); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "feature flag set",
		"tenant_id", flag.TenantID,
		"plugin_id", flag.PluginID,
		"feature", flag.FeatureKey,
		"enabled", flag.Enabled,
	)
	return nil
}

// FeatureEnabled reports whether a flag row exists and is switched on.
func (s *LicenseService) FeatureEnabled(ctx context.Context, tenantID, pluginID, featureKey string) (bool, error) {
	flag, ok, err := s.flags.Get(ctx, tenantID, pluginID, featureKey)
	if err != nil {
		return false, err
	}
	return ok && flag.Enabled, nil
}

func newLicense(m domain.Manifest, tenantID string, plan domain.LicensePlan, expiresAt *time.Time, now time.Time) (domain.License, error) {
	tier, ok := m.Tier(plan)
	if !ok {
		return domain.License{}, fmt.Errorf("%w: %s", domain.ErrTierNotOffered, plan)
	}

	id, err := generateID()
	if err != nil {
		return domain.License{}, fmt.Errorf("generating license id: %w", err)
	}

	if plan == domain.PlanTrial && expiresAt == nil {
		days := tier.TrialDays
		if days <= 0 {
			days = domain.DefaultTrialDays
		}
		end := now.AddDate(0, 0, days)
		expiresAt = &end
	}

	return domain.License{
		ID:        id,
		TenantID:  tenantID,
		PluginID:  m.ID,
		Plan:      plan,
		Status:    domain.LicenseActive,
		Features:  slices.Clone(tier.Features),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
