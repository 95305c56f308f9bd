package realtime

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheKey scopes cached permission sets to one user in one tenant.
type cacheKey struct {
	UserID   int64
	TenantID int64
}

// PermissionCache holds resolved permission tokens for live sessions.
// Entries age out on a TTL so a missed propagation signal self-heals;
// an rbac_updated signal invalidates immediately.
type PermissionCache struct {
	lru *expirable.LRU[cacheKey, []string]
}

// NewPermissionCache creates a cache holding up to size entries, each
// expiring after ttl.
func NewPermissionCache(size int, ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		lru: expirable.NewLRU[cacheKey, []string](size, nil, ttl),
	}
}

// Get returns the cached tokens for the pair, if fresh.
func (c *PermissionCache) Get(userID, tenantID int64) ([]string, bool) {
	return c.lru.Get(cacheKey{UserID: userID, TenantID: tenantID})
}

// Put stores the tokens for the pair.
func (c *PermissionCache) Put(userID, tenantID int64, tokens []string) {
	c.lru.Add(cacheKey{UserID: userID, TenantID: tenantID}, tokens)
}

// Invalidate drops the pair's entry, forcing the next read to
// re-resolve.
func (c *PermissionCache) Invalidate(userID, tenantID int64) {
	c.lru.Remove(cacheKey{UserID: userID, TenantID: tenantID})
}
