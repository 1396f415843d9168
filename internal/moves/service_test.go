package moves

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

type fakeMarketStore struct {
	domain.MarketStore
	active []domain.Market
}

func (f *fakeMarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return f.active, nil
}

type fakeSnapStore struct {
	domain.SnapshotStore
	snaps map[string][]domain.Snapshot
}

func (f *fakeSnapStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Snapshot, error) {
	return f.snaps[marketID], nil
}

type fakeMoveStore struct {
	domain.MoveStore
	inserted []domain.MoveEvent
}

func (f *fakeMoveStore) Insert(ctx context.Context, move domain.MoveEvent) error {
	f.inserted = append(f.inserted, move)
	return nil
}

func (f *fakeMoveStore) ExistsSince(ctx context.Context, marketID string, windowStart time.Time) (bool, error) {
	for _, m := range f.inserted {
		if m.MarketID == marketID && !m.WindowStart.Before(windowStart) {
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	notified int
}

func (r *recordingNotifier) NotifyLargeMove(ctx context.Context, market domain.Market, move domain.MoveEvent) error {
	r.notified++
	return nil
}

func TestScanActivePersistsAndDedups(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	markets := &fakeMarketStore{active: []domain.Market{{ID: "m1", Status: domain.MarketStatusActive}}}
	snaps := &fakeSnapStore{snaps: map[string][]domain.Snapshot{
		"m1": {snapAt(base, 0, 0.60), snapAt(base, 5, 0.82)},
	}}
	moves := &fakeMoveStore{}
	notifier := &recordingNotifier{}

	svc := NewService(NewDetector(24*time.Hour, 15), markets, snaps, moves, notifier, nil)
	svc.now = func() time.Time { return base.Add(6 * time.Hour) }

	n, err := svc.ScanActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, moves.inserted, 1)
	assert.Equal(t, 1, notifier.notified)

	// Second pass rediscovers the same swing; the store dedups it.
	n, err = svc.ScanActive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, moves.inserted, 1)
	assert.Equal(t, 1, notifier.notified)
}
