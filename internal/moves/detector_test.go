package moves

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

func snapAt(base time.Time, hours int, p float64) domain.Snapshot {
	return domain.Snapshot{
		MarketID:    "m1",
		Timestamp:   base.Add(time.Duration(hours) * time.Hour),
		Probability: p,
	}
}

func TestDetectSingleSwing(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 0, 0.60),
		snapAt(base, 5, 0.82),
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "m1", ev.MarketID)
	assert.Equal(t, 0.60, ev.ProbabilityStart)
	assert.Equal(t, 0.82, ev.ProbabilityEnd)
	assert.InDelta(t, 22, ev.ChangePoints, 1e-9)
	assert.Equal(t, base, ev.WindowStart)
	assert.Equal(t, base.Add(5*time.Hour), ev.WindowEnd)
	assert.NotEmpty(t, ev.ID)
}

func TestDetectBelowThreshold(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 0, 0.60),
		snapAt(base, 5, 0.70),
	})
	assert.Empty(t, events)
}

func TestDetectOutsideWindow(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	// The swing is large enough but took 30 hours.
	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 0, 0.60),
		snapAt(base, 30, 0.85),
	})
	assert.Empty(t, events)
}

func TestDetectDownwardSwing(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 0, 0.90),
		snapAt(base, 8, 0.55),
	})
	require.Len(t, events, 1)
	assert.InDelta(t, 35, events[0].ChangePoints, 1e-9)
}

func TestDetectFewerThanTwoSnapshots(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	assert.Empty(t, d.Detect("m1", nil))
	assert.Empty(t, d.Detect("m1", []domain.Snapshot{snapAt(base, 0, 0.5)}))
}

func TestDetectUnorderedInput(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 5, 0.82),
		snapAt(base, 0, 0.60),
	})
	require.Len(t, events, 1)
	assert.Equal(t, 0.60, events[0].ProbabilityStart)
	assert.Equal(t, 0.82, events[0].ProbabilityEnd)
}

func TestDetectNonOverlappingEvents(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(24*time.Hour, 15)

	// Two distinct swings: up 22 points, then down 30 points.
	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 0, 0.60),
		snapAt(base, 4, 0.82),
		snapAt(base, 10, 0.52),
	})

	require.Len(t, events, 2)
	assert.InDelta(t, 22, events[0].ChangePoints, 1e-9)
	assert.InDelta(t, 30, events[1].ChangePoints, 1e-9)
	// Detection resumed at the first event's endpoint.
	assert.Equal(t, events[0].WindowEnd, events[1].WindowStart)
}

func TestDetectGradualDriftDoesNotQualify(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d := NewDetector(6*time.Hour, 15)

	// 5 points every 5 hours: no two in-window readings differ by 15+.
	events := d.Detect("m1", []domain.Snapshot{
		snapAt(base, 0, 0.50),
		snapAt(base, 5, 0.55),
		snapAt(base, 10, 0.60),
		snapAt(base, 15, 0.65),
	})
	assert.Empty(t, events)
}
