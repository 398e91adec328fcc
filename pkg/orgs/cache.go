package orgs

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute
)

// CachedService wraps a Service and caches organization lookups by ID and slug.
// Membership operations pass straight through.
type CachedService struct {
	Service
	byID   *expirable.LRU[string, *Organization]
	bySlug *expirable.LRU[string, *Organization]
}

// NewCachedService wraps inner with expiring LRU caches of the given size
func NewCachedService(inner Service, size int, ttl time.Duration) *CachedService {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedService{
		Service: inner,
		byID:    expirable.NewLRU[string, *Organization](size, nil, ttl),
		bySlug:  expirable.NewLRU[string, *Organization](size, nil, ttl),
	}
}

func (c *CachedService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	if org, ok := c.byID.Get(id); ok {
		return org, nil
	}
	org, err := c.Service.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(org)
	return org, nil
}

func (c *CachedService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	if org, ok := c.bySlug.Get(slug); ok {
		return org, nil
	}
	org, err := c.Service.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(org)
	return org, nil
}

func (c *CachedService) CreateOrganization(ctx context.Context, org *Organization) error {
	if err := c.Service.CreateOrganization(ctx, org); err != nil {
		return err
	}
	c.store(org)
	return nil
}

// Invalidate drops any cached entry for the organization
func (c *CachedService) Invalidate(org *Organization) {
	c.byID.Remove(org.ID)
	c.bySlug.Remove(org.Slug)
}

// Len returns the number of organizations cached by ID
func (c *CachedService) Len() int {
	return c.byID.Len()
}

func (c *CachedService) store(org *Organization) {
	c.byID.Add(org.ID, org)
	c.bySlug.Add(org.Slug, org)
}
