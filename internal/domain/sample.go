package domain

import "time"

// SampleSource records where a probability reading came from.
type SampleSource string

const (
	// SampleSourceSnapshot marks samples read from the local snapshot store.
	SampleSourceSnapshot SampleSource = "snapshot"
	// SampleSourceLiveQuery marks samples fetched from the upstream price
	// history API on demand.
	SampleSourceLiveQuery SampleSource = "live-query"
)

// Sample is a point-in-time probability-of-yes reading for a market.
// Samples are immutable once produced.
type Sample struct {
	MarketID    string
	Timestamp   time.Time
	Probability float64 // probability of the "Yes" outcome, in [0,1]
	Source      SampleSource
}

// Snapshot is a locally ingested market reading. It carries the volume and
// liquidity context that a bare Sample does not need.
type Snapshot struct {
	MarketID    string
	Timestamp   time.Time
	Probability float64 // probability of the "Yes" outcome, in [0,1]
	Liquidity   float64
	Volume      float64
	Volume24h   float64
}

// AsSample converts a snapshot to a plain probability sample.
func (s Snapshot) AsSample() Sample {
	return Sample{
		MarketID:    s.MarketID,
		Timestamp:   s.Timestamp,
		Probability: s.Probability,
		Source:      SampleSourceSnapshot,
	}
}
