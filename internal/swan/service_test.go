package swan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

type fakeCatalog struct {
	markets []domain.Market
	calls   int
	since   time.Time
}

func (f *fakeCatalog) ListResolvedMarkets(ctx context.Context, since time.Time, minVolume float64, limit int) ([]domain.Market, error) {
	f.calls++
	f.since = since
	return f.markets, nil
}

func TestServiceRunCachesByCandidateSet(t *testing.T) {
	cat := &fakeCatalog{markets: []domain.Market{testMarket("m1", domain.OutcomeNo, 200_000)}}
	src := &fakeSource{probs: map[string]map[int]float64{"m1": swanProbs()}}
	scanner := NewScanner(src, 20, nil)
	cache := NewResultCache(30 * time.Minute)

	svc := NewService(cat, scanner, cache, 100, nil)

	first, err := svc.Run(context.Background(), testSpec)
	require.NoError(t, err)
	require.Len(t, first.BlackSwans, 1)

	callsAfterFirst := src.calls.Load()
	second, err := svc.Run(context.Background(), testSpec)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, src.calls.Load(), "second run must be served from cache")
	assert.Same(t, first, second)
	assert.Equal(t, 2, cat.calls, "candidate discovery still runs; only sampling is cached")
}

func TestServiceRunDifferentSpecMissesCache(t *testing.T) {
	cat := &fakeCatalog{markets: []domain.Market{testMarket("m1", domain.OutcomeNo, 200_000)}}
	src := &fakeSource{probs: map[string]map[int]float64{"m1": swanProbs()}}
	svc := NewService(cat, NewScanner(src, 20, nil), NewResultCache(30*time.Minute), 100, nil)

	_, err := svc.Run(context.Background(), testSpec)
	require.NoError(t, err)
	callsAfterFirst := src.calls.Load()

	widened := testSpec
	widened.FinalThreshold = 0.45
	_, err = svc.Run(context.Background(), widened)
	require.NoError(t, err)

	assert.Greater(t, src.calls.Load(), callsAfterFirst)
}

func TestServiceRunRejectsInvalidSpec(t *testing.T) {
	cat := &fakeCatalog{}
	svc := NewService(cat, NewScanner(&fakeSource{}, 20, nil), nil, 100, nil)

	bad := testSpec
	bad.EarlyThreshold = 0
	_, err := svc.Run(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	assert.Zero(t, cat.calls)
}

func TestServiceRunLookbackHorizon(t *testing.T) {
	cat := &fakeCatalog{}
	svc := NewService(cat, NewScanner(&fakeSource{}, 20, nil), nil, 100, nil)

	fixed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, err := svc.Run(context.Background(), testSpec)
	require.NoError(t, err)
	assert.Equal(t, fixed.AddDate(0, 0, -testSpec.MaxLookbackDays), cat.since)
}
