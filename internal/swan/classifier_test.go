package swan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

var testSpec = domain.WindowSpec{
	OffsetsDays:     []int{14, 7, 3},
	EarlyThreshold:  0.70,
	FinalThreshold:  0.40,
	MinVolume:       100_000,
	MaxLookbackDays: 60,
}

func resolvedMarket(winner domain.Outcome) domain.Market {
	end := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return domain.Market{
		ID:       "m1",
		Question: "Will it happen?",
		Volume:   500_000,
		Status:   domain.MarketStatusResolved,
		Winner:   winner,
		EndDate:  &end,
	}
}

func samplesAt(probs map[int]float64) map[int]domain.Sample {
	out := make(map[int]domain.Sample, len(probs))
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for offset, p := range probs {
		out[offset] = domain.Sample{
			MarketID:    "m1",
			Timestamp:   base.AddDate(0, 0, -offset),
			Probability: p,
			Source:      domain.SampleSourceLiveQuery,
		}
	}
	return out
}

func TestClassifyYesFavoriteCollapse(t *testing.T) {
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		14: 0.80,
		7:  0.75,
		3:  0.30,
	}))
	require.NoError(t, err)

	assert.True(t, c.IsBlackSwan)
	assert.Equal(t, domain.OutcomeYes, c.Favorite)
	assert.Equal(t, domain.OutcomeNo, c.WinningSide)
	assert.Equal(t, 0.80, c.EarlyProbability)
	assert.Equal(t, 0.30, c.FinalProbability)
	assert.Equal(t, 0.50, c.Magnitude)
}

func TestClassifyFinalAboveCollapseBound(t *testing.T) {
	// The favorite lost, but its last reading (0.45) never fell below the
	// collapse bound, so the reversal does not qualify.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		14: 0.80,
		3:  0.45,
	}))
	require.NoError(t, err)
	assert.False(t, c.IsBlackSwan)
	assert.Equal(t, 0.45, c.FinalProbability)
}

func TestClassifyNoFavoriteCollapse(t *testing.T) {
	// Probability-of-yes 0.20 at T-14d means No was the 0.80 favorite. No
	// lost, and its final probability is 1-0.70 = 0.30.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeYes), samplesAt(map[int]float64{
		14: 0.20,
		3:  0.70,
	}))
	require.NoError(t, err)

	assert.True(t, c.IsBlackSwan)
	assert.Equal(t, domain.OutcomeNo, c.Favorite)
	assert.Equal(t, 0.80, c.EarlyProbability)
	assert.Equal(t, 0.30, c.FinalProbability)
	assert.Equal(t, 0.50, c.Magnitude)
}

func TestClassifyFavoriteWon(t *testing.T) {
	// A late dip does not matter when the favorite still won.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeYes), samplesAt(map[int]float64{
		14: 0.85,
		3:  0.35,
	}))
	require.NoError(t, err)
	assert.False(t, c.IsBlackSwan)
	assert.Equal(t, domain.OutcomeYes, c.Favorite)
}

func TestClassifyNoEarlyCertainty(t *testing.T) {
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		14: 0.60,
		7:  0.55,
		3:  0.20,
	}))
	require.NoError(t, err)
	assert.False(t, c.IsBlackSwan)
	assert.Empty(t, c.Favorite)
}

func TestClassifyInconclusiveEarliestReading(t *testing.T) {
	// T-14d has data and is not certain either way. Certainty appearing at
	// T-7d does not retroactively create an early favorite.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		14: 0.60,
		7:  0.72,
		3:  0.10,
	}))
	require.NoError(t, err)
	assert.False(t, c.IsBlackSwan)
	assert.Empty(t, c.Favorite)
}

func TestClassifyLaterOffsetStandsInWhenEarlierMissing(t *testing.T) {
	// No data at T-14d, so T-7d is the earliest available reading.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		7: 0.72,
		3: 0.10,
	}))
	require.NoError(t, err)
	assert.True(t, c.IsBlackSwan)
	assert.Equal(t, 0.72, c.EarlyProbability)
}

func TestClassifyBelowVolumeFloor(t *testing.T) {
	m := resolvedMarket(domain.OutcomeNo)
	m.Volume = 50_000
	c, err := Classify(testSpec, m, samplesAt(map[int]float64{
		14: 0.80,
		3:  0.10,
	}))
	require.NoError(t, err)
	assert.False(t, c.IsBlackSwan)
	assert.Empty(t, c.Favorite)
}

func TestClassifyMissingEarlyOffsets(t *testing.T) {
	// Only the nearest offset has data. It fixes the favorite and also
	// serves as the final reading, so no collapse can be observed.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		3: 0.85,
	}))
	require.NoError(t, err)
	assert.False(t, c.IsBlackSwan)
	assert.Equal(t, domain.OutcomeYes, c.Favorite)
	assert.Equal(t, 0.0, c.Magnitude)
}

func TestClassifyRoundingAtBoundaries(t *testing.T) {
	// 0.69995 rounds to 0.7000 and qualifies as early certainty; 0.39995
	// rounds to 0.4000, which is not strictly below the collapse bound.
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		14: 0.69995,
		3:  0.39995,
	}))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeYes, c.Favorite)
	assert.Equal(t, 0.70, c.EarlyProbability)
	assert.Equal(t, 0.40, c.FinalProbability)
	assert.False(t, c.IsBlackSwan)
}

func TestClassifyJustBelowCollapseBound(t *testing.T) {
	c, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samplesAt(map[int]float64{
		14: 0.75,
		3:  0.3999,
	}))
	require.NoError(t, err)
	assert.True(t, c.IsBlackSwan)
}

func TestClassifyNoSamples(t *testing.T) {
	_, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), nil)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestClassifyUnresolvedMarket(t *testing.T) {
	m := resolvedMarket("")
	m.Status = domain.MarketStatusActive
	_, err := Classify(testSpec, m, samplesAt(map[int]float64{14: 0.9}))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestClassifyIsDeterministic(t *testing.T) {
	samples := samplesAt(map[int]float64{14: 0.82, 7: 0.76, 3: 0.12})
	first, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samples)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Classify(testSpec, resolvedMarket(domain.OutcomeNo), samples)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
