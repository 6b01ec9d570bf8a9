package nutrition

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 5 * time.Minute
)

type cachedEstimate struct {
	estimate Estimate
	storedAt time.Time
}

// CachedEstimator memoizes estimates per normalized description. Failed
// estimates are never cached.
type CachedEstimator struct {
	delegate Estimator
	cache    *lru.Cache[string, cachedEstimate]
	ttl      time.Duration
	now      func() time.Time
}

// NewCachedEstimator wraps delegate with an LRU cache. Non-positive size or
// ttl fall back to the defaults.
func NewCachedEstimator(delegate Estimator, size int, ttl time.Duration) *CachedEstimator {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, cachedEstimate](size)

	return &CachedEstimator{
		delegate: delegate,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Estimate implements Estimator
func (c *CachedEstimator) Estimate(ctx context.Context, description string) (Estimate, error) {
	key := strings.ToLower(strings.Join(strings.Fields(description), " "))

	if entry, ok := c.cache.Get(key); ok {
		if c.now().Sub(entry.storedAt) < c.ttl {
			return entry.estimate, nil
		}
		c.cache.Remove(key)
	}

	est, err := c.delegate.Estimate(ctx, description)
	if err != nil {
		return Estimate{}, err
	}
	c.cache.Add(key, cachedEstimate{estimate: est, storedAt: c.now()})
	return est, nil
}

// Len returns the number of cached estimates
func (c *CachedEstimator) Len() int {
	return c.cache.Len()
}
