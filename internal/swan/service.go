package swan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// catalog is the slice of the Gamma client the service needs to discover
// candidate markets.
type catalog interface {
	ListResolvedMarkets(ctx context.Context, since time.Time, minVolume float64, limit int) ([]domain.Market, error)
}

// Service ties candidate discovery, the scanner, and the result cache into
// the single entry point callers use to run a reversal scan.
type Service struct {
	catalog        catalog
	scanner        *Scanner
	cache          *ResultCache
	candidateLimit int
	logger         *slog.Logger

	now func() time.Time
}

// NewService creates the scan service. cache may be nil to disable result
// caching.
func NewService(cat catalog, scanner *Scanner, cache *ResultCache, candidateLimit int, logger *slog.Logger) *Service {
	if candidateLimit <= 0 {
		candidateLimit = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:        cat,
		scanner:        scanner,
		cache:          cache,
		candidateLimit: candidateLimit,
		logger:         logger.With("component", "swan_service"),
		now:            time.Now,
	}
}

// Run validates spec, discovers resolved candidates inside the lookback
// horizon, and classifies them. Results for the same spec and candidate set
// are served from cache within the cache TTL.
func (s *Service) Run(ctx context.Context, spec domain.WindowSpec) (*ScanResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	since := s.now().UTC().AddDate(0, 0, -spec.MaxLookbackDays)
	markets, err := s.catalog.ListResolvedMarkets(ctx, since, spec.MinVolume, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("swan: list candidates: %w", err)
	}
	s.logger.Info("candidates discovered", "count", len(markets), "since", since)

	if s.cache == nil {
		return s.scanner.Scan(ctx, spec, markets)
	}

	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}
	key := spec.Fingerprint(ids)

	result, fromCache, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*ScanResult, error) {
		return s.scanner.Scan(ctx, spec, markets)
	})
	if err != nil {
		return nil, err
	}
	if fromCache {
		s.logger.Info("scan served from cache", "key", key[:12])
	}
	return result, nil
}
