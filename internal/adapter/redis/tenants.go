// Package redis caches tenant lookups in Redis. Host-based tenant detection
// runs on every request, so GetBySlug and GetByCustomDomain hits skip SQLite.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// DefaultTTL bounds how stale a cached tenant can be.
const DefaultTTL = 5 * time.Minute

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewClient connects to the Redis server at addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

type cachedTenant struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Slug                 string    `json:"slug"`
	CustomDomain         string    `json:"custom_domain,omitempty"`
	Plan                 string    `json:"plan"`
	Status               string    `json:"status"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func fromTenant(t domain.Tenant) cachedTenant {
	return cachedTenant{
		ID:                   t.ID,
		Name:                 t.Name,
		Slug:                 t.Slug,
		CustomDomain:         t.CustomDomain,
		Plan:                 t.Plan,
		Status:               string(t.Status),
		StripeCustomerID:     t.StripeCustomerID,
		StripeSubscriptionID: t.StripeSubscriptionID,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func (c cachedTenant) tenant() domain.Tenant {
	return domain.Tenant{
		ID:                   c.ID,
		Name:                 c.Name,
		Slug:                 c.Slug,
		CustomDomain:         c.CustomDomain,
		Plan:                 c.Plan,
		Status:               domain.TenantStatus(c.Status),
		StripeCustomerID:     c.StripeCustomerID,
		StripeSubscriptionID: c.StripeSubscriptionID,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

func idKey(id string) string       { return "tenant:id:" + id }
func slugKey(slug string) string   { return "tenant:slug:" + slug }
func domainKey(host string) string { return "tenant:domain:" + host }

// keys lists every cache entry that can hold t.
func keys(t domain.Tenant) []string {
	out := []string{idKey(t.ID), slugKey(t.Slug)}
	if t.CustomDomain != "" {
		out = append(out, domainKey(t.CustomDomain))
	}
	return out
}

// CachingTenants is a read-through cache in front of a TenantRepository.
// Redis failures are logged and the lookup falls back to the repository.
type CachingTenants struct {
	next   domain.TenantRepository
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.TenantRepository = (*CachingTenants)(nil)

// NewCachingTenants wraps next. A zero ttl uses DefaultTTL.
func NewCachingTenants(next domain.TenantRepository, client Client, ttl time.Duration, logger *slog.Logger) *CachingTenants {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingTenants{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachingTenants) Create(ctx context.Context, tenant domain.Tenant) error {
	return c.next.Create(ctx, tenant)
}

func (c *CachingTenants) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return c.lookup(ctx, idKey(id), func() (domain.Tenant, error) { return c.next.GetByID(ctx, id) })
}

func (c *CachingTenants) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return c.lookup(ctx, slugKey(slug), func() (domain.Tenant, error) { return c.next.GetBySlug(ctx, slug) })
}

func (c *CachingTenants) GetByCustomDomain(ctx context.Context, host string) (domain.Tenant, error) {
	return c.lookup(ctx, domainKey(host), func() (domain.Tenant, error) { return c.next.GetByCustomDomain(ctx, host) })
}

func (c *CachingTenants) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return c.next.List(ctx, filter)
}

// Update writes through and evicts entries for both the old and new slug
// and custom domain.
func (c *CachingTenants) Update(ctx context.Context, tenant domain.Tenant) error {
	stale := keys(tenant)
	if old, err := c.next.GetByID(ctx, tenant.ID); err == nil {
		stale = append(stale, keys(old)...)
	}

	if err := c.next.Update(ctx, tenant); err != nil {
		return err
	}

	if err := c.client.Del(ctx, stale...).Err(); err != nil {
		c.logger.WarnContext(ctx, "tenant cache eviction failed", "tenant_id", tenant.ID, "error", err)
	}
	return nil
}

func (c *CachingTenants) lookup(ctx context.Context, key string, load func() (domain.Tenant, error)) (domain.Tenant, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedTenant
		if jerr := json.Unmarshal(data, &cached); jerr == nil {
			return cached.tenant(), nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt tenant cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "tenant cache read failed", "key", key, "error", err)
	}

	tenant, err := load()
	if err != nil {
		return domain.Tenant{}, err
	}

	data, err = json.Marshal(fromTenant(tenant))
	if err == nil {
		for _, k := range keys(tenant) {
			if serr := c.client.SetEx(ctx, k, data, c.ttl).Err(); serr != nil {
				c.logger.WarnContext(ctx, "tenant cache write failed", "key", k, "error", serr)
				break
			}
		}
	}
	return tenant, nil
}
