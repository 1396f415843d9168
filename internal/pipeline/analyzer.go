package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/swan"
)

// analyzerBatchSize caps how many markets one analysis cycle picks up.
const analyzerBatchSize = 50

// Analyzer grades resolved markets: how confident was the final price, was
// it right, and did the market end in a late reversal. Each market gets one
// row in the resolution store; markets without price data are retried on
// later cycles.
type Analyzer struct {
	spec    domain.WindowSpec
	markets domain.MarketStore
	source  swan.PriceSource
	results domain.ResolutionStore
	alerts  Alerts
	logger  *slog.Logger
}

// NewAnalyzer creates an Analyzer. alerts may be nil.
func NewAnalyzer(spec domain.WindowSpec, markets domain.MarketStore, source swan.PriceSource, results domain.ResolutionStore, alerts Alerts, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		spec:    spec,
		markets: markets,
		source:  source,
		results: results,
		alerts:  alerts,
		logger:  logger.With(slog.String("component", "analyzer")),
	}
}

// Run analyzes one batch of resolved-but-unanalyzed markets. It returns the
// number of analyses recorded; a failure on one market does not stop the
// batch.
func (a *Analyzer) Run(ctx context.Context) (int, error) {
	pending, err := a.markets.ListResolvedUnanalyzed(ctx, analyzerBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing unanalyzed markets: %w", err)
	}

	recorded := 0
	for _, market := range pending {
		if ctx.Err() != nil {
			return recorded, ctx.Err()
		}

		if err := a.analyzeMarket(ctx, market); err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				a.logger.Debug("no price data yet, will retry",
					slog.String("market_id", market.ID),
				)
				continue
			}
			a.logger.Warn("analysis failed for market",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recorded++
	}

	if len(pending) > 0 {
		a.logger.Info("resolution analysis cycle finished",
			slog.Int("pending", len(pending)),
			slog.Int("recorded", recorded),
		)
	}
	return recorded, nil
}

// analyzeMarket samples the market's pre-resolution price curve, classifies
// it, and records the analysis.
func (a *Analyzer) analyzeMarket(ctx context.Context, market domain.Market) error {
	resolvedAt := resolutionTime(market)

	samples := make(map[int]domain.Sample, len(a.spec.OffsetsDays))
	for _, offset := range a.spec.OffsetsDays {
		target := resolvedAt.AddDate(0, 0, -offset)
		sample, err := a.source.SampleAt(ctx, market, target)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				continue
			}
			return fmt.Errorf("sampling %dd out: %w", offset, err)
		}
		samples[offset] = sample
	}
	if len(samples) == 0 {
		return domain.ErrDataUnavailable
	}

	cls, err := swan.Classify(a.spec, market, samples)
	if err != nil {
		return fmt.Errorf("classifying: %w", err)
	}

	// The final yes-side reading is the sample closest to resolution.
	var finalYes float64
	for i := len(a.spec.OffsetsDays) - 1; i >= 0; i-- {
		if s, ok := samples[a.spec.OffsetsDays[i]]; ok {
			finalYes = domain.Round4(s.Probability)
			break
		}
	}

	predicted := domain.OutcomeYes
	confidence := finalYes
	if finalYes < 0.5 {
		predicted = domain.OutcomeNo
		confidence = domain.Round4(1 - finalYes)
	}

	analysis := domain.ResolutionAnalysis{
		MarketID:           market.ID,
		FinalProbability:   finalYes,
		ProbabilityBucket:  domain.BucketFor(confidence),
		ResolvedAt:         resolvedAt,
		Outcome:            market.Winner,
		PredictedCorrectly: predicted == market.Winner,
		IsBlackSwan:        cls.IsBlackSwan,
	}
	if err := a.results.Insert(ctx, analysis); err != nil {
		return fmt.Errorf("recording analysis: %w", err)
	}

	if cls.IsBlackSwan {
		a.logger.Info("black swan recorded",
			slog.String("market_id", market.ID),
			slog.Float64("magnitude", cls.Magnitude),
		)
		if a.alerts != nil {
			if err := a.alerts.NotifyBlackSwan(ctx, cls); err != nil {
				a.logger.Warn("black swan alert failed", slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// RunLoop runs analysis cycles on a repeating interval until the context is
// cancelled.
func (a *Analyzer) RunLoop(ctx context.Context, interval time.Duration) error {
	if _, err := a.Run(ctx); err != nil {
		a.logger.Error("analysis cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("analyzer loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("analysis cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// resolutionTime is the instant a market is treated as resolved.
func resolutionTime(m domain.Market) time.Time {
	if m.EndDate != nil {
		return m.EndDate.UTC()
	}
	return m.UpdatedAt.UTC()
}
