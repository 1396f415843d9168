package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/moves"
)

// MoveScan drives the large-move detector over active markets on a repeating
// interval.
type MoveScan struct {
	svc    *moves.Service
	logger *slog.Logger
}

// NewMoveScan creates a MoveScan around the given move service.
func NewMoveScan(svc *moves.Service, logger *slog.Logger) *MoveScan {
	return &MoveScan{
		svc:    svc,
		logger: logger.With(slog.String("component", "move_scan")),
	}
}

// RunLoop runs detection passes on a repeating interval until the context is
// cancelled.
func (m *MoveScan) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("move scan loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.svc.ScanActive(ctx); err != nil {
				m.logger.Error("move scan pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
