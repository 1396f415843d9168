// Package moves detects rapid probability swings in active markets from
// locally ingested snapshots.
package moves

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// Detector finds probability swings of at least ThresholdPoints percentage
// points between two snapshots taken at most Window apart. Detection is pure
// and works entirely over data already in hand.
type Detector struct {
	// Window bounds how far apart the two readings of a swing may be.
	Window time.Duration
	// ThresholdPoints is the minimum absolute change, in percentage points
	// (a move from 0.60 to 0.82 is 22 points).
	ThresholdPoints float64

	// now is swappable for tests.
	now func() time.Time
}

// NewDetector creates a detector for the given window and threshold.
func NewDetector(window time.Duration, thresholdPoints float64) *Detector {
	return &Detector{
		Window:          window,
		ThresholdPoints: thresholdPoints,
		now:             time.Now,
	}
}

// Detect scans a market's snapshots for qualifying swings. Snapshots may be
// passed in any order. Emitted events never overlap: once a swing is
// reported, detection resumes from its endpoint. Fewer than two snapshots
// can never produce an event.
func (d *Detector) Detect(marketID string, snaps []domain.Snapshot) []domain.MoveEvent {
	if len(snaps) < 2 {
		return nil
	}

	ordered := append([]domain.Snapshot(nil), snaps...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var events []domain.MoveEvent
	anchor := 0

	for j := 1; j < len(ordered); j++ {
		end := ordered[j]

		// Best counterpart for this endpoint: the in-window snapshot since
		// the last event with the largest probability distance.
		best := -1
		var bestDelta float64
		for k := anchor; k < j; k++ {
			if end.Timestamp.Sub(ordered[k].Timestamp) > d.Window {
				continue
			}
			delta := end.Probability - ordered[k].Probability
			if delta < 0 {
				delta = -delta
			}
			if best < 0 || delta > bestDelta {
				best = k
				bestDelta = delta
			}
		}
		if best < 0 {
			continue
		}

		points := domain.Round4(bestDelta) * 100
		if points < d.ThresholdPoints {
			continue
		}

		start := ordered[best]
		events = append(events, domain.MoveEvent{
			ID:               uuid.NewString(),
			MarketID:         marketID,
			DetectedAt:       d.now().UTC(),
			WindowStart:      start.Timestamp,
			WindowEnd:        end.Timestamp,
			ProbabilityStart: start.Probability,
			ProbabilityEnd:   end.Probability,
			ChangePoints:     points,
		})
		anchor = j
	}

	return events
}
