package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/platform/polymarket"
)

type fakeCatalog struct {
	quotes   []polymarket.Quote
	resolved []domain.Market
}

func (f *fakeCatalog) ListActiveQuotes(ctx context.Context, minVolume float64, limit int) ([]polymarket.Quote, error) {
	return f.quotes, nil
}

func (f *fakeCatalog) ListResolvedMarkets(ctx context.Context, since time.Time, minVolume float64, limit int) ([]domain.Market, error) {
	return f.resolved, nil
}

type fakeMarketStore struct {
	domain.MarketStore

	upserted []domain.Market
}

func (f *fakeMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	f.upserted = append(f.upserted, markets...)
	return nil
}

type fakeSnapshotStore struct {
	domain.SnapshotStore

	inserted []domain.Snapshot
}

func (f *fakeSnapshotStore) InsertBatch(ctx context.Context, snaps []domain.Snapshot) error {
	f.inserted = append(f.inserted, snaps...)
	return nil
}

type fakeLocks struct {
	held     bool
	acquired int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() {}, nil
}

func endingIn(days int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, days)
	return &t
}

func activeQuote(id string, price float64, endInDays int) polymarket.Quote {
	return polymarket.Quote{
		Market: domain.Market{
			ID:      id,
			Status:  domain.MarketStatusActive,
			Volume:  500_000,
			EndDate: endingIn(endInDays),
		},
		YesPrice: price,
	}
}

func TestCollectorRecordsMarketsAndSnapshots(t *testing.T) {
	resolvedWinner := domain.Market{ID: "m9", Status: domain.MarketStatusResolved, Winner: domain.OutcomeYes}
	cat := &fakeCatalog{
		quotes:   []polymarket.Quote{activeQuote("m1", 0.62, 10), activeQuote("m2", 0.41, 20)},
		resolved: []domain.Market{resolvedWinner},
	}
	markets := &fakeMarketStore{}
	snaps := &fakeSnapshotStore{}
	locks := &fakeLocks{}

	col := NewCollector(cat, markets, snaps, locks, nil, CollectorConfig{
		MinVolume:    100_000,
		MarketLimit:  100,
		LookbackDays: 60,
	}, slog.New(slog.DiscardHandler))

	require.NoError(t, col.Run(context.Background()))

	assert.Equal(t, 1, locks.acquired)
	require.Len(t, markets.upserted, 3) // 2 active + 1 resolved
	require.Len(t, snaps.inserted, 2)
	assert.Equal(t, "m1", snaps.inserted[0].MarketID)
	assert.Equal(t, 0.62, snaps.inserted[0].Probability)
	assert.Equal(t, 500_000.0, snaps.inserted[0].Volume)
}

func TestCollectorSkipsDistantResolutions(t *testing.T) {
	cat := &fakeCatalog{
		quotes: []polymarket.Quote{activeQuote("soon", 0.5, 5), activeQuote("distant", 0.5, 400)},
	}
	markets := &fakeMarketStore{}
	snaps := &fakeSnapshotStore{}

	col := NewCollector(cat, markets, snaps, nil, nil, CollectorConfig{
		MarketLimit:         100,
		MaxDaysToResolution: 90,
		LookbackDays:        60,
	}, slog.New(slog.DiscardHandler))

	require.NoError(t, col.Run(context.Background()))
	require.Len(t, markets.upserted, 1)
	assert.Equal(t, "soon", markets.upserted[0].ID)
}

func TestCollectorSkipsWhenLockHeld(t *testing.T) {
	cat := &fakeCatalog{quotes: []polymarket.Quote{activeQuote("m1", 0.5, 5)}}
	markets := &fakeMarketStore{}
	snaps := &fakeSnapshotStore{}
	locks := &fakeLocks{held: true}

	col := NewCollector(cat, markets, snaps, locks, nil, CollectorConfig{
		MarketLimit:  100,
		LookbackDays: 60,
	}, slog.New(slog.DiscardHandler))

	require.NoError(t, col.Run(context.Background()))
	assert.Empty(t, markets.upserted)
	assert.Empty(t, snaps.inserted)
}
