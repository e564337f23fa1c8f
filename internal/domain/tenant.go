package domain

import (
	"strings"
	"time"
)

// TenantStatus represents the billing/lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

// DefaultTenantID is the built-in tenant seeded by the platform schema.
// The registry uses it as its process-wide scope.
const DefaultTenantID = "default"

// Tenant is an organization using the platform. It is reachable through its
// slug subdomain or an optional custom domain.
type Tenant struct {
	ID                   string
	Name                 string
	Slug                 string
	CustomDomain         string
	Plan                 string
	Status               TenantStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewTenant creates an active tenant.
func NewTenant(id, name, slug, plan string) Tenant {
	now := time.Now().UTC()
	return Tenant{
		ID:        id,
		Name:      name,
		Slug:      slug,
		Plan:      plan,
		Status:    TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Slugify derives a URL-safe slug from a human name: lowercase ASCII letters
// and digits separated by single hyphens. Returns "tenant" if nothing usable remains.
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	if b.Len() == 0 {
		return "tenant"
	}
	return b.String()
}
