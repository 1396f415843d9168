package domain

import (
	"context"
	"time"
)

// SampleCache caches historical point samples across processes. Historical
// prices are immutable, so entries can live long; the TTL only bounds growth.
type SampleCache interface {
	Set(ctx context.Context, sample Sample, target time.Time) error
	// Get returns the cached sample for (marketID, target), or ErrNotFound.
	Get(ctx context.Context, marketID string, target time.Time) (Sample, error)
}

// RateLimiter provides distributed rate limiting for upstream API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking so that only one collector
// instance runs a given job at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
