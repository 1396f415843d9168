package swan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// ScanResult is the outcome of one full reversal scan over a candidate set.
type ScanResult struct {
	Spec            domain.WindowSpec
	GeneratedAt     time.Time
	Scanned         int
	Classifications []domain.Classification
	BlackSwans      []domain.Classification
	// Errors maps market IDs to the failure that excluded them from the
	// classifications. A failed market never fails the scan.
	Errors map[string]error
}

// Scanner runs the reversal classification over candidate markets with
// bounded concurrency: markets are processed in fixed-size batches, each
// batch fanning out one goroutine per (market, offset) pair. A batch is
// fully awaited before the next starts, so upstream load is capped at
// batchSize * len(offsets) in-flight requests.
type Scanner struct {
	source    PriceSource
	batchSize int
	logger    *slog.Logger
}

// NewScanner creates a scanner reading prices from source.
func NewScanner(source PriceSource, batchSize int, logger *slog.Logger) *Scanner {
	if batchSize <= 0 {
		batchSize = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		source:    source,
		batchSize: batchSize,
		logger:    logger.With("component", "scanner"),
	}
}

// Scan classifies every candidate market against spec. Markets below the
// volume floor or without a known winner are skipped silently; markets whose
// samples cannot be fetched are reported in the result's Errors map. Scan
// only returns an error for an invalid spec or a cancelled context, in which
// case no partial result is produced.
func (s *Scanner) Scan(ctx context.Context, spec domain.WindowSpec, markets []domain.Market) (*ScanResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	candidates := s.filterCandidates(spec, markets)

	result := &ScanResult{
		Spec:        spec,
		GeneratedAt: time.Now().UTC(),
		Scanned:     len(candidates),
		Errors:      make(map[string]error),
	}

	s.logger.Info("scan started",
		"candidates", len(candidates),
		"offsets", spec.OffsetsDays,
		"batch_size", s.batchSize)

	for start := 0; start < len(candidates); start += s.batchSize {
		end := start + s.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if err := s.scanBatch(ctx, spec, candidates[start:end], result); err != nil {
			return nil, err
		}
	}

	// Deterministic output order regardless of goroutine scheduling.
	sort.Slice(result.Classifications, func(i, j int) bool {
		return result.Classifications[i].MarketID < result.Classifications[j].MarketID
	})
	for _, c := range result.Classifications {
		if c.IsBlackSwan {
			result.BlackSwans = append(result.BlackSwans, c)
		}
	}

	s.logger.Info("scan finished",
		"classified", len(result.Classifications),
		"black_swans", len(result.BlackSwans),
		"failed", len(result.Errors))

	return result, nil
}

// filterCandidates deduplicates by market ID and drops markets that cannot
// be classified: unresolved ones and those below the volume floor.
func (s *Scanner) filterCandidates(spec domain.WindowSpec, markets []domain.Market) []domain.Market {
	seen := make(map[string]struct{}, len(markets))
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if !m.Resolved() {
			continue
		}
		if m.Volume < spec.MinVolume {
			s.logger.Debug("candidate below volume floor", "market_id", m.ID, "volume", m.Volume)
			continue
		}
		out = append(out, m)
	}
	return out
}

// scanBatch fans out sampling for one batch and classifies its markets once
// every (market, offset) fetch has settled. Sampling failures are isolated
// per market; only context cancellation aborts the whole scan.
func (s *Scanner) scanBatch(ctx context.Context, spec domain.WindowSpec, batch []domain.Market, result *ScanResult) error {
	type marketSamples struct {
		mu      sync.Mutex
		samples map[int]domain.Sample
		lastErr error
	}

	collected := make(map[string]*marketSamples, len(batch))
	for _, m := range batch {
		collected[m.ID] = &marketSamples{samples: make(map[int]domain.Sample, len(spec.OffsetsDays))}
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, market := range batch {
		resolvedAt := resolutionTime(market)
		ms := collected[market.ID]

		for _, offset := range spec.OffsetsDays {
			market, offset := market, offset
			target := resolvedAt.AddDate(0, 0, -offset)

			g.Go(func() error {
				sample, err := s.source.SampleAt(gctx, market, target)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					if !errors.Is(err, domain.ErrDataUnavailable) {
						// Unexpected failure shape; isolate it to the market
						// all the same.
						s.logger.Warn("sample failed",
							"market_id", market.ID, "offset_days", offset, "error", err)
					}
					ms.mu.Lock()
					ms.lastErr = err
					ms.mu.Unlock()
					return nil
				}
				ms.mu.Lock()
				ms.samples[offset] = sample
				ms.mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scan aborted: %w", err)
	}

	for _, market := range batch {
		ms := collected[market.ID]
		if len(ms.samples) == 0 {
			err := ms.lastErr
			if err == nil {
				err = domain.ErrDataUnavailable
			}
			result.Errors[market.ID] = err
			continue
		}
		c, err := Classify(spec, market, ms.samples)
		if err != nil {
			result.Errors[market.ID] = err
			continue
		}
		result.Classifications = append(result.Classifications, c)
	}

	return nil
}

// resolutionTime returns the instant offsets are measured back from. EndDate
// is the catalog's resolution time; UpdatedAt stands in when it is missing.
func resolutionTime(m domain.Market) time.Time {
	if m.EndDate != nil {
		return m.EndDate.UTC()
	}
	return m.UpdatedAt.UTC()
}
