package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// WindowSpec configures one black-swan scan: where to sample the price curve
// before resolution and what counts as early certainty and final collapse.
// All thresholds are configuration; nothing in the engine hard-codes them.
type WindowSpec struct {
	// OffsetsDays are lookback offsets before resolution, strictly decreasing
	// toward resolution (e.g. 14, 7, 3).
	OffsetsDays []int
	// EarlyThreshold is the probability at or above which the market is
	// considered confidently leaning "Yes" (and 1-EarlyThreshold the mirror
	// for "No"), e.g. 0.70.
	EarlyThreshold float64
	// FinalThreshold is the collapse bound: the early favorite's last known
	// probability must fall strictly below it, e.g. 0.40.
	FinalThreshold float64
	// MinVolume excludes thin markets whose prices are noisy and manipulable.
	MinVolume float64
	// MaxLookbackDays bounds how far back candidate resolutions may lie.
	MaxLookbackDays int
}

// Validate checks the spec invariants. A spec that fails validation must
// abort the scan before any network call is made.
func (s WindowSpec) Validate() error {
	if len(s.OffsetsDays) == 0 {
		return fmt.Errorf("%w: at least one lookback offset required", ErrInvalidSpec)
	}
	prev := math.MaxInt
	for _, d := range s.OffsetsDays {
		if d <= 0 {
			return fmt.Errorf("%w: offset days must be positive, got %d", ErrInvalidSpec, d)
		}
		if d >= prev {
			return fmt.Errorf("%w: offsets must strictly decrease toward resolution", ErrInvalidSpec)
		}
		prev = d
	}
	if s.EarlyThreshold <= 0 || s.EarlyThreshold > 1 {
		return fmt.Errorf("%w: early threshold %v outside (0,1]", ErrInvalidSpec, s.EarlyThreshold)
	}
	if s.FinalThreshold <= 0 || s.FinalThreshold > 1 {
		return fmt.Errorf("%w: final threshold %v outside (0,1]", ErrInvalidSpec, s.FinalThreshold)
	}
	if s.MinVolume < 0 {
		return fmt.Errorf("%w: volume floor must not be negative", ErrInvalidSpec)
	}
	if s.MaxLookbackDays <= 0 {
		return fmt.Errorf("%w: max lookback days must be positive", ErrInvalidSpec)
	}
	if s.OffsetsDays[0] > s.MaxLookbackDays {
		return fmt.Errorf("%w: largest offset %dd exceeds lookback horizon %dd",
			ErrInvalidSpec, s.OffsetsDays[0], s.MaxLookbackDays)
	}
	return nil
}

// Fingerprint returns a stable hash of the spec combined with the candidate
// market set, used as the result-cache key.
func (s WindowSpec) Fingerprint(candidateIDs []string) string {
	ids := append([]string(nil), candidateIDs...)
	sort.Strings(ids)

	var b strings.Builder
	for _, d := range s.OffsetsDays {
		fmt.Fprintf(&b, "%d,", d)
	}
	fmt.Fprintf(&b, "|%.4f|%.4f|%.2f|%d|", s.EarlyThreshold, s.FinalThreshold, s.MinVolume, s.MaxLookbackDays)
	b.WriteString(strings.Join(ids, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Classification is the derived verdict for a single resolved market. It is
// recomputed per scan and never persisted by the engine itself.
type Classification struct {
	MarketID         string
	Question         string
	IsBlackSwan      bool
	EarlyProbability float64 // favorite's probability at the early reading
	EarlyAt          time.Time
	FinalProbability float64 // favorite's last known probability
	FinalAt          time.Time
	WinningSide      Outcome
	Favorite         Outcome
	Magnitude        float64 // early - final, signed toward the loss
	Volume           float64
}

// MoveEvent flags a rapid probability swing inside a rolling window.
type MoveEvent struct {
	ID               string
	MarketID         string
	DetectedAt       time.Time
	WindowStart      time.Time
	WindowEnd        time.Time
	ProbabilityStart float64 // in [0,1]
	ProbabilityEnd   float64 // in [0,1]
	ChangePoints     float64 // absolute delta in probability points (x100)
}

// ResolutionAnalysis records how well the market's final price predicted the
// actual outcome, for accuracy bucketing on the dashboard.
type ResolutionAnalysis struct {
	MarketID           string
	FinalProbability   float64 // in [0,1]
	ProbabilityBucket  string  // e.g. "80-90%"
	ResolvedAt         time.Time
	Outcome            Outcome
	PredictedCorrectly bool
	IsBlackSwan        bool
}

// BucketStats aggregates resolution accuracy for one probability bucket.
type BucketStats struct {
	Bucket         string
	TotalResolved  int
	Correct        int
	Incorrect      int
	AccuracyRate   float64 // percent
	BlackSwanCount int
}

// Round4 rounds a probability to 4 decimal places. Threshold comparisons use
// rounded values so float aggregation noise cannot flip a boundary decision.
func Round4(p float64) float64 {
	return math.Round(p*10000) / 10000
}

// bucketBounds are the lower bounds (percent) of the accuracy buckets.
var bucketBounds = []int{0, 50, 60, 70, 80, 90, 95}

// BucketFor maps a final probability in [0,1] to its accuracy bucket label,
// e.g. 0.87 -> "80-90%".
func BucketFor(p float64) string {
	pct := p * 100
	for i := len(bucketBounds) - 1; i >= 0; i-- {
		if pct >= float64(bucketBounds[i]) {
			hi := 100
			if i < len(bucketBounds)-1 {
				hi = bucketBounds[i+1]
			}
			return fmt.Sprintf("%d-%d%%", bucketBounds[i], hi)
		}
	}
	return "0-50%"
}
