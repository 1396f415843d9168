package swan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// fakeSource serves canned probabilities keyed by market ID and offset days,
// and can fail specific markets or block until cancellation.
type fakeSource struct {
	mu     sync.Mutex
	probs  map[string]map[int]float64
	fail   map[string]error
	block  bool
	calls  atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
}

func (f *fakeSource) SampleAt(ctx context.Context, market domain.Market, target time.Time) (domain.Sample, error) {
	f.calls.Add(1)

	cur := f.active.Add(1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	defer f.active.Add(-1)

	if f.block {
		<-ctx.Done()
		return domain.Sample{}, ctx.Err()
	}
	// Let goroutines of the same batch overlap.
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[market.ID]; ok {
		return domain.Sample{}, err
	}
	offsets, ok := f.probs[market.ID]
	if !ok {
		return domain.Sample{}, domain.ErrDataUnavailable
	}
	offset := int(resolutionTime(market).Sub(target).Hours() / 24)
	p, ok := offsets[offset]
	if !ok {
		return domain.Sample{}, domain.ErrDataUnavailable
	}
	return domain.Sample{
		MarketID:    market.ID,
		Timestamp:   target,
		Probability: p,
		Source:      domain.SampleSourceLiveQuery,
	}, nil
}

func testMarket(id string, winner domain.Outcome, volume float64) domain.Market {
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return domain.Market{
		ID:      id,
		Volume:  volume,
		Status:  domain.MarketStatusResolved,
		Winner:  winner,
		EndDate: &end,
	}
}

func swanProbs() map[int]float64 {
	return map[int]float64{14: 0.80, 7: 0.75, 3: 0.20}
}

func TestScanClassifiesAndIsolatesFailures(t *testing.T) {
	src := &fakeSource{
		probs: map[string]map[int]float64{
			"m1": swanProbs(),
			"m2": {14: 0.55, 7: 0.50, 3: 0.45},
		},
		fail: map[string]error{
			"m3": fmt.Errorf("history gone: %w", domain.ErrDataUnavailable),
		},
	}
	scanner := NewScanner(src, 20, nil)

	result, err := scanner.Scan(context.Background(), testSpec, []domain.Market{
		testMarket("m1", domain.OutcomeNo, 200_000),
		testMarket("m2", domain.OutcomeYes, 200_000),
		testMarket("m3", domain.OutcomeNo, 200_000),
	})
	require.NoError(t, err)

	require.Len(t, result.Classifications, 2)
	assert.Equal(t, "m1", result.Classifications[0].MarketID)
	assert.True(t, result.Classifications[0].IsBlackSwan)
	assert.False(t, result.Classifications[1].IsBlackSwan)

	require.Len(t, result.BlackSwans, 1)
	require.Contains(t, result.Errors, "m3")
	assert.ErrorIs(t, result.Errors["m3"], domain.ErrDataUnavailable)
}

func TestScanDeduplicatesCandidates(t *testing.T) {
	src := &fakeSource{probs: map[string]map[int]float64{"m1": swanProbs()}}
	scanner := NewScanner(src, 20, nil)

	m := testMarket("m1", domain.OutcomeNo, 200_000)
	result, err := scanner.Scan(context.Background(), testSpec, []domain.Market{m, m, m})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scanned)
	assert.Len(t, result.Classifications, 1)
	// One fetch per offset, not per duplicate.
	assert.Equal(t, int64(len(testSpec.OffsetsDays)), src.calls.Load())
}

func TestScanSkipsBelowVolumeFloor(t *testing.T) {
	src := &fakeSource{probs: map[string]map[int]float64{
		"thin": swanProbs(),
		"fat":  swanProbs(),
	}}
	scanner := NewScanner(src, 20, nil)

	result, err := scanner.Scan(context.Background(), testSpec, []domain.Market{
		testMarket("thin", domain.OutcomeNo, 5_000),
		testMarket("fat", domain.OutcomeNo, 500_000),
	})
	require.NoError(t, err)

	// Excluded, not failed: no classification and no error entry.
	require.Len(t, result.Classifications, 1)
	assert.Equal(t, "fat", result.Classifications[0].MarketID)
	assert.NotContains(t, result.Errors, "thin")
}

func TestScanBoundsConcurrency(t *testing.T) {
	probs := make(map[string]map[int]float64)
	markets := make([]domain.Market, 0, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("m%02d", i)
		probs[id] = swanProbs()
		markets = append(markets, testMarket(id, domain.OutcomeNo, 200_000))
	}
	src := &fakeSource{probs: probs}

	batchSize := 4
	scanner := NewScanner(src, batchSize, nil)

	_, err := scanner.Scan(context.Background(), testSpec, markets)
	require.NoError(t, err)

	limit := int64(batchSize * len(testSpec.OffsetsDays))
	assert.LessOrEqual(t, src.peak.Load(), limit,
		"in-flight samples must stay within batch_size * offsets")
}

func TestScanInvalidSpecFailsBeforeSampling(t *testing.T) {
	src := &fakeSource{}
	scanner := NewScanner(src, 20, nil)

	bad := testSpec
	bad.OffsetsDays = []int{3, 7, 14}

	_, err := scanner.Scan(context.Background(), bad, []domain.Market{testMarket("m1", domain.OutcomeNo, 200_000)})
	require.ErrorIs(t, err, domain.ErrInvalidSpec)
	assert.Zero(t, src.calls.Load())
}

func TestScanCancellationAbortsEverything(t *testing.T) {
	src := &fakeSource{block: true}
	scanner := NewScanner(src, 20, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := scanner.Scan(ctx, testSpec, []domain.Market{
		testMarket("m1", domain.OutcomeNo, 200_000),
		testMarket("m2", domain.OutcomeNo, 200_000),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanIsIdempotent(t *testing.T) {
	src := &fakeSource{probs: map[string]map[int]float64{
		"m1": swanProbs(),
		"m2": {14: 0.65, 7: 0.72, 3: 0.38},
	}}
	scanner := NewScanner(src, 20, nil)

	markets := []domain.Market{
		testMarket("m1", domain.OutcomeNo, 200_000),
		testMarket("m2", domain.OutcomeNo, 200_000),
	}

	first, err := scanner.Scan(context.Background(), testSpec, markets)
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background(), testSpec, markets)
	require.NoError(t, err)

	assert.Equal(t, first.Classifications, second.Classifications)
	assert.Equal(t, first.BlackSwans, second.BlackSwans)
}
