package swan

import (
	"fmt"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// Classify derives the reversal verdict for one resolved market from its
// offset samples. samples is keyed by lookback offset in days; offsets with
// no data are simply absent. Classify is pure: it performs no I/O and its
// output depends only on its inputs.
//
// The rules:
//
//   - The early reading is the sample at the farthest offset holding data;
//     nearer offsets stand in only when the farther ones have no sample. It
//     fixes the favorite when its rounded probability clears EarlyThreshold
//     (for Yes) or falls at or below 1-EarlyThreshold (for No). An early
//     reading that is not certain either way means no favorite, and the
//     market can never be a black swan.
//   - The final reading is the available sample nearest to resolution.
//   - Markets below the volume floor never qualify.
//   - The market is a black swan when an early favorite existed, the
//     favorite lost, and the favorite's final probability is strictly below
//     FinalThreshold.
//
// All probability comparisons use values rounded to 4 decimals.
func Classify(spec domain.WindowSpec, market domain.Market, samples map[int]domain.Sample) (domain.Classification, error) {
	if !market.Resolved() {
		return domain.Classification{}, fmt.Errorf("market %s has no known winner: %w", market.ID, domain.ErrDataUnavailable)
	}
	if len(samples) == 0 {
		return domain.Classification{}, fmt.Errorf("market %s has no usable samples: %w", market.ID, domain.ErrDataUnavailable)
	}

	c := domain.Classification{
		MarketID:    market.ID,
		Question:    market.Question,
		WinningSide: market.Winner,
		Volume:      market.Volume,
	}

	if market.Volume < spec.MinVolume {
		// Thin markets never qualify.
		return c, nil
	}

	noBound := domain.Round4(1 - spec.EarlyThreshold)

	// Early favorite: judged on the earliest available reading alone. Later
	// offsets are consulted only when the earlier ones carry no data.
	var favorite domain.Outcome
	var earlyAt time.Time
	var earlyFav float64
	for _, offset := range spec.OffsetsDays {
		sample, ok := samples[offset]
		if !ok {
			continue
		}
		p := domain.Round4(sample.Probability)
		switch {
		case p >= spec.EarlyThreshold:
			favorite = domain.OutcomeYes
			earlyFav = p
		case p <= noBound:
			favorite = domain.OutcomeNo
			earlyFav = domain.Round4(1 - p)
		}
		earlyAt = sample.Timestamp
		break
	}

	// Final reading: the available sample nearest to resolution, which is
	// the smallest offset holding data.
	final, finalOK := finalSample(spec, samples)
	if finalOK {
		c.FinalAt = final.Timestamp
	}

	if favorite == "" || !finalOK {
		// Never confidently leaned either way, or nothing to read a collapse
		// from. Not a black swan by definition.
		if finalOK {
			c.FinalProbability = domain.Round4(final.Probability)
		}
		return c, nil
	}

	finalFav := domain.Round4(final.Probability)
	if favorite == domain.OutcomeNo {
		finalFav = domain.Round4(1 - final.Probability)
	}

	c.Favorite = favorite
	c.EarlyProbability = earlyFav
	c.EarlyAt = earlyAt
	c.FinalProbability = finalFav
	c.Magnitude = domain.Round4(earlyFav - finalFav)
	c.IsBlackSwan = market.Winner != favorite && finalFav < spec.FinalThreshold

	return c, nil
}

// finalSample returns the sample at the smallest offset that holds data.
func finalSample(spec domain.WindowSpec, samples map[int]domain.Sample) (domain.Sample, bool) {
	for i := len(spec.OffsetsDays) - 1; i >= 0; i-- {
		if s, ok := samples[spec.OffsetsDays[i]]; ok {
			return s, true
		}
	}
	return domain.Sample{}, false
}
