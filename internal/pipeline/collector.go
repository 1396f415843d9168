// Package pipeline contains the long-running background loops: market and
// snapshot collection, resolution analysis, move scanning, and cold-storage
// archival. The orchestrator runs them concurrently and owns their lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/platform/polymarket"
)

// collectorLockTTL bounds how long a crashed collector can block its
// successors.
const collectorLockTTL = 10 * time.Minute

// Catalog is the slice of the Gamma client the collector uses.
type Catalog interface {
	ListActiveQuotes(ctx context.Context, minVolume float64, limit int) ([]polymarket.Quote, error)
	ListResolvedMarkets(ctx context.Context, since time.Time, minVolume float64, limit int) ([]domain.Market, error)
}

// Alerts is the slice of the notification layer the pipeline uses.
type Alerts interface {
	NotifyCollectorError(ctx context.Context, stage string, err error) error
	NotifyBlackSwan(ctx context.Context, c domain.Classification) error
}

// CollectorConfig tunes one collection cycle.
type CollectorConfig struct {
	// MinVolume excludes thin markets from tracking.
	MinVolume float64
	// MarketLimit caps how many active markets are tracked per cycle.
	MarketLimit int
	// MaxDaysToResolution skips markets resolving too far out to matter.
	// Zero disables the filter.
	MaxDaysToResolution int
	// LookbackDays bounds how far back resolved markets are backfilled.
	LookbackDays int
}

// Collector ingests active-market snapshots and resolution state from the
// catalog into the local stores. Each cycle is guarded by a distributed lock
// so overlapping instances do not duplicate work.
type Collector struct {
	catalog   Catalog
	markets   domain.MarketStore
	snapshots domain.SnapshotStore
	locks     domain.LockManager
	alerts    Alerts
	cfg       CollectorConfig
	logger    *slog.Logger

	now func() time.Time
}

// NewCollector creates a Collector. locks and alerts may be nil.
func NewCollector(catalog Catalog, markets domain.MarketStore, snapshots domain.SnapshotStore, locks domain.LockManager, alerts Alerts, cfg CollectorConfig, logger *slog.Logger) *Collector {
	return &Collector{
		catalog:   catalog,
		markets:   markets,
		snapshots: snapshots,
		locks:     locks,
		alerts:    alerts,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "collector")),
		now:       time.Now,
	}
}

// Run executes a single collection cycle: sync open markets and their
// current prices, then backfill resolution state for recently closed ones.
// A cycle already running elsewhere is skipped, not an error.
func (c *Collector) Run(ctx context.Context) error {
	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, "collector", collectorLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				c.logger.Info("collector cycle already running elsewhere, skipping")
				return nil
			}
			return fmt.Errorf("acquiring collector lock: %w", err)
		}
		defer unlock()
	}

	if err := c.syncActive(ctx); err != nil {
		c.report(ctx, "sync_active", err)
		return err
	}
	if err := c.syncResolved(ctx); err != nil {
		c.report(ctx, "sync_resolved", err)
		return err
	}
	return nil
}

// syncActive upserts tracked open markets and records one snapshot per
// market from the catalog's current prices.
func (c *Collector) syncActive(ctx context.Context) error {
	quotes, err := c.catalog.ListActiveQuotes(ctx, c.cfg.MinVolume, c.cfg.MarketLimit)
	if err != nil {
		return fmt.Errorf("listing active markets: %w", err)
	}

	now := c.now().UTC().Truncate(time.Second)
	horizon := now.AddDate(0, 0, c.cfg.MaxDaysToResolution)

	markets := make([]domain.Market, 0, len(quotes))
	snaps := make([]domain.Snapshot, 0, len(quotes))
	for _, q := range quotes {
		if c.cfg.MaxDaysToResolution > 0 && q.Market.EndDate != nil && q.Market.EndDate.After(horizon) {
			continue
		}
		markets = append(markets, q.Market)
		snaps = append(snaps, domain.Snapshot{
			MarketID:    q.Market.ID,
			Timestamp:   now,
			Probability: q.YesPrice,
			Liquidity:   q.Market.Liquidity,
			Volume:      q.Market.Volume,
		})
	}

	if len(markets) == 0 {
		c.logger.Info("no active markets to track")
		return nil
	}

	if err := c.markets.UpsertBatch(ctx, markets); err != nil {
		return fmt.Errorf("upserting %d markets: %w", len(markets), err)
	}
	if err := c.snapshots.InsertBatch(ctx, snaps); err != nil {
		return fmt.Errorf("inserting %d snapshots: %w", len(snaps), err)
	}

	c.logger.Info("active markets synced",
		slog.Int("markets", len(markets)),
		slog.Int("snapshots", len(snaps)),
	)
	return nil
}

// syncResolved upserts recently closed markets so their resolution state and
// winner reach the store. The upsert flips the status of markets we were
// already tracking.
func (c *Collector) syncResolved(ctx context.Context) error {
	since := c.now().UTC().AddDate(0, 0, -c.cfg.LookbackDays)

	resolved, err := c.catalog.ListResolvedMarkets(ctx, since, c.cfg.MinVolume, c.cfg.MarketLimit)
	if err != nil {
		return fmt.Errorf("listing resolved markets: %w", err)
	}
	if len(resolved) == 0 {
		return nil
	}

	if err := c.markets.UpsertBatch(ctx, resolved); err != nil {
		return fmt.Errorf("upserting %d resolved markets: %w", len(resolved), err)
	}

	c.logger.Info("resolved markets synced", slog.Int("markets", len(resolved)))
	return nil
}

// RunLoop runs collection cycles on a repeating interval until the context
// is cancelled.
func (c *Collector) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := c.Run(ctx); err != nil {
		c.logger.Error("collector cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.Run(ctx); err != nil {
				c.logger.Error("collector cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// report sends a collector error alert, best effort.
func (c *Collector) report(ctx context.Context, stage string, err error) {
	if c.alerts == nil {
		return
	}
	if nerr := c.alerts.NotifyCollectorError(ctx, stage, err); nerr != nil {
		c.logger.Warn("collector error alert failed", slog.String("error", nerr.Error()))
	}
}
