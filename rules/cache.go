package rules

import "time"

// RulesCache holds the active rule list between store reads
type RulesCache interface {
	// Get returns the cached rules, or nil on a miss or after expiry
	Get() []*Rule

	// Set stores rules in cache
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a store read on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL bounds how long a rule list is served without re-reading the store.
	// Zero means entries live until invalidated; use it when the engine is the
	// only writer.
	TTL time.Duration
}

// DefaultCacheConfig returns a cache that is only cleared on mutation
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
