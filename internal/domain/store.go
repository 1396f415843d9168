package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	// ListResolvedUnanalyzed returns markets with a known winner that have no
	// resolution analysis row yet.
	ListResolvedUnanalyzed(ctx context.Context, limit int) ([]Market, error)
	SetStatus(ctx context.Context, id string, status MarketStatus) error
	Count(ctx context.Context) (int64, error)
}

// SnapshotStore persists point-in-time market readings.
type SnapshotStore interface {
	Insert(ctx context.Context, snap Snapshot) error
	InsertBatch(ctx context.Context, snaps []Snapshot) error
	// ListByMarket returns a market's snapshots ordered by timestamp
	// ascending, optionally bounded by opts.Since/Until.
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Snapshot, error)
	// LatestBefore returns the most recent snapshot at or before t.
	LatestBefore(ctx context.Context, marketID string, t time.Time) (Snapshot, error)
	// ListBefore pages through snapshots older than the cutoff, for archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Snapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// MoveStore persists detected large probability moves.
type MoveStore interface {
	Insert(ctx context.Context, move MoveEvent) error
	// ExistsSince reports whether a move for the market was already recorded
	// with a window starting at or after the given time. Used to dedup
	// repeated detections of the same swing.
	ExistsSince(ctx context.Context, marketID string, windowStart time.Time) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]MoveEvent, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]MoveEvent, error)
}

// ResolutionStore persists resolution accuracy analysis.
type ResolutionStore interface {
	Insert(ctx context.Context, a ResolutionAnalysis) error
	GetByMarket(ctx context.Context, marketID string) (ResolutionAnalysis, error)
	ListBlackSwans(ctx context.Context, limit int) ([]ResolutionAnalysis, error)
	BucketStats(ctx context.Context) ([]BucketStats, error)
}
