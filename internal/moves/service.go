package moves

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// Notifier is the slice of the notification layer the move service uses.
type Notifier interface {
	NotifyLargeMove(ctx context.Context, market domain.Market, move domain.MoveEvent) error
}

// Service runs the detector over active markets and persists new events.
type Service struct {
	detector  *Detector
	markets   domain.MarketStore
	snapshots domain.SnapshotStore
	moves     domain.MoveStore
	notifier  Notifier
	logger    *slog.Logger

	now func() time.Time
}

// NewService wires the move detector to its stores. notifier may be nil.
func NewService(detector *Detector, markets domain.MarketStore, snapshots domain.SnapshotStore, moves domain.MoveStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector:  detector,
		markets:   markets,
		snapshots: snapshots,
		moves:     moves,
		notifier:  notifier,
		logger:    logger.With("component", "moves"),
		now:       time.Now,
	}
}

// ScanActive runs one detection pass over every active market. It returns
// the number of new events persisted. A failure on one market does not stop
// the pass.
func (s *Service) ScanActive(ctx context.Context) (int, error) {
	markets, err := s.markets.ListActive(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("moves: list active markets: %w", err)
	}

	since := s.now().UTC().Add(-s.detector.Window)
	inserted := 0

	for _, market := range markets {
		if ctx.Err() != nil {
			return inserted, ctx.Err()
		}

		n, err := s.scanMarket(ctx, market, since)
		if err != nil {
			s.logger.Warn("move scan failed for market", "market_id", market.ID, "error", err)
			continue
		}
		inserted += n
	}

	s.logger.Info("move scan pass finished", "markets", len(markets), "new_events", inserted)
	return inserted, nil
}

// scanMarket detects and persists events for one market.
func (s *Service) scanMarket(ctx context.Context, market domain.Market, since time.Time) (int, error) {
	snaps, err := s.snapshots.ListByMarket(ctx, market.ID, domain.ListOpts{Since: &since})
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	events := s.detector.Detect(market.ID, snaps)
	inserted := 0

	for _, ev := range events {
		// The same swing is rediscovered on every pass while its snapshots
		// stay inside the window; the store is the dedup authority.
		exists, err := s.moves.ExistsSince(ctx, market.ID, ev.WindowStart)
		if err != nil {
			return inserted, fmt.Errorf("dedup check: %w", err)
		}
		if exists {
			continue
		}

		if err := s.moves.Insert(ctx, ev); err != nil {
			return inserted, fmt.Errorf("insert move: %w", err)
		}
		inserted++

		s.logger.Info("large move detected",
			"market_id", market.ID,
			"change_points", ev.ChangePoints,
			"from", ev.ProbabilityStart,
			"to", ev.ProbabilityEnd)

		if s.notifier != nil {
			if err := s.notifier.NotifyLargeMove(ctx, market, ev); err != nil {
				s.logger.Warn("large move notification failed", "error", err)
			}
		}
	}

	return inserted, nil
}
