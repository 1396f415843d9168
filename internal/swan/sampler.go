// Package swan implements black-swan reversal detection for resolved
// prediction markets: sampling the price curve at fixed offsets before
// resolution, classifying confident favorites that collapsed, and scanning
// candidate sets concurrently with cached results.
package swan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/platform/polymarket"
)

const (
	// sampleWindow bounds how far from the requested instant a price point
	// may lie and still count as a reading for it. Keeping the window narrow
	// keeps upstream responses small and the reading honest.
	sampleWindow = 12 * time.Hour

	// sampleFidelityMinutes is the price-history resolution requested from
	// the upstream API.
	sampleFidelityMinutes = 60
)

// PriceSource produces a probability-of-yes reading for a market at (or near)
// a target instant.
type PriceSource interface {
	// SampleAt returns the reading closest to target within the sampling
	// window, or domain.ErrDataUnavailable when no data exists near it.
	SampleAt(ctx context.Context, market domain.Market, target time.Time) (domain.Sample, error)
}

// priceHistoryClient is the slice of the CLOB client the sampler needs.
type priceHistoryClient interface {
	GetPriceHistory(ctx context.Context, tokenID string, startTs, endTs int64, fidelityMinutes int) ([]polymarket.PricePoint, error)
}

// ClobSampler samples historical prices from the CLOB price-history API,
// with a shared rate limiter in front and a cache behind: historical prices
// are immutable, so a hit never needs revalidation.
type ClobSampler struct {
	clob    priceHistoryClient
	limiter domain.RateLimiter
	cache   domain.SampleCache
	retry   RetryPolicy
	logger  *slog.Logger

	// rateKey / rateLimit / rateWindow parameterize the shared limiter.
	rateKey    string
	rateLimit  int
	rateWindow time.Duration
}

// ClobSamplerOpts configures a ClobSampler. Limiter and Cache are optional.
type ClobSamplerOpts struct {
	Limiter    domain.RateLimiter
	Cache      domain.SampleCache
	Retry      RetryPolicy
	RateLimit  int
	RateWindow time.Duration
	Logger     *slog.Logger
}

// NewClobSampler creates a sampler backed by the CLOB price-history API.
func NewClobSampler(clob priceHistoryClient, opts ClobSamplerOpts) *ClobSampler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 50
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = 10 * time.Second
	}
	return &ClobSampler{
		clob:       clob,
		limiter:    opts.Limiter,
		cache:      opts.Cache,
		retry:      opts.Retry,
		logger:     opts.Logger.With("component", "clob_sampler"),
		rateKey:    "clob:prices-history",
		rateLimit:  opts.RateLimit,
		rateWindow: opts.RateWindow,
	}
}

// SampleAt implements PriceSource against the CLOB price-history endpoint.
// The reading is taken for the market's Yes token, so the returned
// probability is always probability-of-yes.
func (s *ClobSampler) SampleAt(ctx context.Context, market domain.Market, target time.Time) (domain.Sample, error) {
	tokenID := market.TokenIDs[0]
	if tokenID == "" {
		return domain.Sample{}, fmt.Errorf("market %s has no price token: %w", market.ID, domain.ErrDataUnavailable)
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, market.ID, target); err == nil {
			return cached, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("sample cache read failed", "market_id", market.ID, "error", err)
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.rateKey, s.rateLimit, s.rateWindow); err != nil {
			return domain.Sample{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	startTs := target.Add(-sampleWindow).Unix()
	endTs := target.Add(sampleWindow).Unix()

	var points []polymarket.PricePoint
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		points, err = s.clob.GetPriceHistory(ctx, tokenID, startTs, endTs, sampleFidelityMinutes)
		return err
	})
	if err != nil {
		return domain.Sample{}, err
	}

	best, ok := closestPoint(points, target)
	if !ok {
		return domain.Sample{}, fmt.Errorf("no price points within %s of %s for market %s: %w",
			sampleWindow, target.Format(time.RFC3339), market.ID, domain.ErrDataUnavailable)
	}

	sample := domain.Sample{
		MarketID:    market.ID,
		Timestamp:   best.Time(),
		Probability: best.Price,
		Source:      domain.SampleSourceLiveQuery,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, sample, target); err != nil {
			s.logger.Warn("sample cache write failed", "market_id", market.ID, "error", err)
		}
	}

	return sample, nil
}

// closestPoint picks the point with the smallest absolute distance to target.
func closestPoint(points []polymarket.PricePoint, target time.Time) (polymarket.PricePoint, bool) {
	var best polymarket.PricePoint
	bestDist := time.Duration(-1)
	for _, p := range points {
		dist := target.Sub(p.Time())
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = p
			bestDist = dist
		}
	}
	return best, bestDist >= 0
}

// StoreSampler samples from locally ingested snapshots instead of the
// upstream API. Useful when the collector has been running long enough to
// cover the scan horizon.
type StoreSampler struct {
	snapshots domain.SnapshotStore
}

// NewStoreSampler creates a sampler backed by the snapshot store.
func NewStoreSampler(snapshots domain.SnapshotStore) *StoreSampler {
	return &StoreSampler{snapshots: snapshots}
}

// SampleAt implements PriceSource over stored snapshots.
func (s *StoreSampler) SampleAt(ctx context.Context, market domain.Market, target time.Time) (domain.Sample, error) {
	since := target.Add(-sampleWindow)
	until := target.Add(sampleWindow)

	snaps, err := s.snapshots.ListByMarket(ctx, market.ID, domain.ListOpts{Since: &since, Until: &until})
	if err != nil {
		return domain.Sample{}, fmt.Errorf("list snapshots for market %s: %w", market.ID, err)
	}
	if len(snaps) == 0 {
		return domain.Sample{}, fmt.Errorf("no snapshots within %s of %s for market %s: %w",
			sampleWindow, target.Format(time.RFC3339), market.ID, domain.ErrDataUnavailable)
	}

	best := snaps[0]
	bestDist := absDuration(target.Sub(best.Timestamp))
	for _, snap := range snaps[1:] {
		if dist := absDuration(target.Sub(snap.Timestamp)); dist < bestDist {
			best = snap
			bestDist = dist
		}
	}

	return best.AsSample(), nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
