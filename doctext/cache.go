package doctext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedProvider memoizes another provider's output by document path.
// Errors are not cached.
type CachedProvider struct {
	next  Provider
	cache *gocache.Cache
}

// NewCachedProvider wraps next with a cache whose entries live for ttl.
// A ttl of zero or less keeps entries until process exit.
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	cleanup := ttl * 2
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &CachedProvider{
		next:  next,
		cache: gocache.New(ttl, cleanup),
	}
}

// Text implements Provider
func (p *CachedProvider) Text(ctx context.Context, path string) (string, error) {
	key := cacheKey(path)
	if v, found := p.cache.Get(key); found {
		return v.(string), nil
	}

	text, err := p.next.Text(ctx, path)
	if err != nil {
		return "", err
	}
	p.cache.SetDefault(key, text)
	return text, nil
}

// Forget drops the cached text for path
func (p *CachedProvider) Forget(path string) {
	p.cache.Delete(cacheKey(path))
}

// Len returns the number of cached documents
func (p *CachedProvider) Len() int {
	return p.cache.ItemCount()
}

func cacheKey(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}
