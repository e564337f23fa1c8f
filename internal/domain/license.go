package domain

import (
	"slices"
	"time"
)

// LicensePlan is the billing plan a license was granted under.
type LicensePlan string

const (
	PlanFree     LicensePlan = "free"
	PlanTrial    LicensePlan = "trial"
	PlanMonthly  LicensePlan = "monthly"
	PlanYearly   LicensePlan = "yearly"
	PlanLifetime LicensePlan = "lifetime"
)

// LicenseStatus is the state of a plugin license.
type LicenseStatus string

const (
	LicenseActive   LicenseStatus = "active"
	LicenseTrialing LicenseStatus = "trialing"
	LicenseExpired  LicenseStatus = "expired"
	LicenseCanceled LicenseStatus = "canceled"
)

// DefaultTrialDays is the trial length when a tier does not specify one.
const DefaultTrialDays = 14

// License grants a tenant the use of a plugin. Features are copied from the
// tier at grant time and are not recomputed when tiers change.
type License struct {
	ID        string
	TenantID  string
	PluginID  string
	Plan      LicensePlan
	Status    LicenseStatus
	Features  []string
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the license is active and unexpired at now.
func (l License) Active(now time.Time) bool {
	if l.Status != LicenseActive {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// Entitles reports whether the license grants feature at now.
func (l License) Entitles(feature string, now time.Time) bool {
	return l.Active(now) && slices.Contains(l.Features, feature)
}

// FeatureFlag is a per-tenant override that switches a plugin feature on or off.
type FeatureFlag struct {
	TenantID   string
	PluginID   string
	FeatureKey string
	Enabled    bool
}
