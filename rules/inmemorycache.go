package rules

import (
	gocache "github.com/patrickmn/go-cache"
)

const activeRulesKey = "active"

// InMemoryRulesCache is a go-cache backed RulesCache.
// Safe for concurrent access.
type InMemoryRulesCache struct {
	store *gocache.Cache
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	ttl := config.TTL
	cleanup := ttl
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &InMemoryRulesCache{
		store: gocache.New(ttl, cleanup),
	}
}

// Get returns a copy of the cached rule list
func (c *InMemoryRulesCache) Get() []*Rule {
	v, ok := c.store.Get(activeRulesKey)
	if !ok {
		return nil
	}
	cached := v.([]*Rule)
	out := make([]*Rule, len(cached))
	copy(out, cached)
	return out
}

// Set stores a copy of rules
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	stored := make([]*Rule, len(rules))
	copy(stored, rules)
	c.store.Set(activeRulesKey, stored, gocache.DefaultExpiration)
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.store.Delete(activeRulesKey)
}

// IsValid returns true if cache contains unexpired data
func (c *InMemoryRulesCache) IsValid() bool {
	_, ok := c.store.Get(activeRulesKey)
	return ok
}
