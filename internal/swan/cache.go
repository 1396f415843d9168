package swan

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ResultCache memoizes scan results in-process. Identical scans (same spec
// fingerprint over the same candidate set) within the TTL return the cached
// result; concurrent identical scans are collapsed into a single execution
// via singleflight, with late arrivals receiving the first caller's result.
type ResultCache struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry

	// now is swappable for tests.
	now func() time.Time
}

type cacheEntry struct {
	result    *ScanResult
	expiresAt time.Time
}

// NewResultCache creates a result cache with the given TTL.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached result for key when fresh, otherwise runs
// compute exactly once across concurrent callers and caches its result.
// fromCache reports whether the returned result was served without running
// compute in this call. A failed or cancelled compute is never cached and
// its flight slot is released, so the next caller retries.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (*ScanResult, error)) (result *ScanResult, fromCache bool, err error) {
	if cached, ok := c.lookup(key); ok {
		return cached, true, nil
	}

	var computed bool
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have populated the entry between our lookup
		// and joining the flight.
		if cached, ok := c.lookup(key); ok {
			return cached, nil
		}

		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		computed = true
		c.mu.Lock()
		c.entries[key] = cacheEntry{result: res, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		c.group.Forget(key)
		return nil, false, err
	}

	return v.(*ScanResult), !computed, nil
}

// Invalidate drops the cached entry for key, forcing the next call to
// recompute.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.group.Forget(key)
}

// lookup returns a fresh entry for key, evicting it when expired.
func (c *ResultCache) lookup(key string) (*ScanResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.result, true
}
