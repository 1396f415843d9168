package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/feed"
	"github.com/lukaskaminskis/polymarket-analytics/internal/moves"
	"github.com/lukaskaminskis/polymarket-analytics/internal/pipeline"
	"github.com/lukaskaminskis/polymarket-analytics/internal/server"
	"github.com/lukaskaminskis/polymarket-analytics/internal/server/handler"
	"github.com/lukaskaminskis/polymarket-analytics/internal/swan"
)

// windowSpec builds the default scan spec from configuration.
func (a *App) windowSpec() domain.WindowSpec {
	return domain.WindowSpec{
		OffsetsDays:     a.cfg.Scan.OffsetsDays,
		EarlyThreshold:  a.cfg.Scan.EarlyThreshold,
		FinalThreshold:  a.cfg.Scan.FinalThreshold,
		MinVolume:       a.cfg.Scan.MinVolumeUSD,
		MaxLookbackDays: a.cfg.Scan.MaxLookbackDays,
	}
}

// buildPriceSource selects where point samples come from: the CLOB history
// API behind the shared rate limiter and sample cache, or local snapshots.
func (a *App) buildPriceSource(deps *Dependencies) swan.PriceSource {
	if strings.ToLower(a.cfg.Scan.Source) == "store" {
		return swan.NewStoreSampler(deps.SnapshotStore)
	}
	return swan.NewClobSampler(deps.Clob, swan.ClobSamplerOpts{
		Limiter: deps.RateLimiter,
		Cache:   deps.SampleCache,
		Retry: swan.RetryPolicy{
			MaxRetries: a.cfg.Scan.MaxRetries,
			Backoff:    a.cfg.Scan.RetryBackoff.Duration,
		},
		RateLimit:  a.cfg.Polymarket.RateLimit,
		RateWindow: a.cfg.Polymarket.RateWindow.Duration,
		Logger:     a.logger,
	})
}

// buildSwanService assembles the on-demand reversal scan service.
func (a *App) buildSwanService(deps *Dependencies) *swan.Service {
	source := a.buildPriceSource(deps)
	scanner := swan.NewScanner(source, a.cfg.Scan.BatchSize, a.logger)
	cache := swan.NewResultCache(a.cfg.Scan.CacheTTL.Duration)
	return swan.NewService(deps.Gamma, scanner, cache, a.cfg.Scan.CandidateLimit, a.logger)
}

// buildMoveService assembles the large-move detection service.
func (a *App) buildMoveService(deps *Dependencies) *moves.Service {
	detector := moves.NewDetector(
		time.Duration(a.cfg.Moves.WindowHours)*time.Hour,
		a.cfg.Moves.ThresholdPoints,
	)
	return moves.NewService(detector, deps.MarketStore, deps.SnapshotStore, deps.MoveStore, deps.Notifier, a.logger)
}

// buildOrchestrator assembles the background pipeline for the given
// component selection.
func (a *App) buildOrchestrator(deps *Dependencies, withCollect, withDetect bool) *pipeline.Orchestrator {
	var (
		collector *pipeline.Collector
		analyzer  *pipeline.Analyzer
		moveScan  *pipeline.MoveScan
		archiver  *pipeline.Archiver
		liveFeed  pipeline.Runner
	)

	if withCollect && a.cfg.Collector.Enabled {
		collector = pipeline.NewCollector(deps.Gamma, deps.MarketStore, deps.SnapshotStore, deps.LockManager, deps.Notifier, pipeline.CollectorConfig{
			MinVolume:           a.cfg.Collector.MinVolumeUSD,
			MarketLimit:         a.cfg.Collector.MarketLimit,
			MaxDaysToResolution: a.cfg.Collector.MaxDaysToResolution,
			LookbackDays:        a.cfg.Scan.MaxLookbackDays,
		}, a.logger)

		if a.cfg.Collector.LiveFeedEnabled && a.cfg.Polymarket.WsHost != "" {
			liveFeed = feed.NewLiveFeed(
				a.cfg.Polymarket.WsHost,
				deps.MarketStore,
				deps.SnapshotStore,
				a.cfg.Collector.MarketLimit,
				a.logger,
			)
		}

		if a.cfg.Archive.Enabled && deps.BlobWriter != nil {
			archiver = pipeline.NewArchiver(deps.SnapshotStore, deps.BlobWriter, a.cfg.Archive.RetentionDays, a.logger)
		}
	}

	if withDetect {
		analyzer = pipeline.NewAnalyzer(a.windowSpec(), deps.MarketStore, a.buildPriceSource(deps), deps.ResolutionStore, deps.Notifier, a.logger)
		moveScan = pipeline.NewMoveScan(a.buildMoveService(deps), a.logger)
	}

	return pipeline.NewOrchestrator(collector, analyzer, moveScan, archiver, liveFeed, pipeline.OrchestratorConfig{
		CollectInterval:  a.cfg.Collector.Interval.Duration,
		MoveScanInterval: a.cfg.Moves.ScanInterval.Duration,
		ArchiveCron:      a.cfg.Archive.Cron,
	}, a.logger)
}

// buildServer assembles the HTTP API server.
func (a *App) buildServer(deps *Dependencies) *server.Server {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.PGClient,
			"redis":    deps.RedisClient,
		}, a.logger),
		Markets: handler.NewMarketHandler(deps.MarketStore, deps.SnapshotStore, a.logger),
		Swans:   handler.NewSwanHandler(a.buildSwanService(deps), deps.ResolutionStore, a.windowSpec(), a.logger),
		Moves:   handler.NewMoveHandler(deps.MoveStore, a.logger),
		Stats:   handler.NewStatsHandler(deps.MarketStore, deps.SnapshotStore, deps.ResolutionStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, a.logger)
}

// runServer runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func runServer(ctx context.Context, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// CollectMode runs only data collection: market sync, snapshots, the
// optional live feed, and archival.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode")
	return a.buildOrchestrator(deps, true, false).Run(ctx)
}

// DetectMode runs only detection over already collected data: resolution
// analysis and large-move scanning.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")
	return a.buildOrchestrator(deps, false, true).Run(ctx)
}

// ScanMode runs a single on-demand reversal scan and prints the result as
// JSON to stdout.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	result, err := a.buildSwanService(deps).Run(ctx, a.windowSpec())
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	failures := make(map[string]string, len(result.Errors))
	for id, merr := range result.Errors {
		failures[id] = merr.Error()
	}

	out := map[string]any{
		"generated_at": result.GeneratedAt,
		"scanned":      result.Scanned,
		"black_swans":  result.BlackSwans,
	}
	if len(failures) > 0 {
		out["errors"] = failures
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("scan mode: encode result: %w", err)
	}

	a.logger.InfoContext(ctx, "scan complete",
		slog.Int("scanned", result.Scanned),
		slog.Int("black_swans", len(result.BlackSwans)),
		slog.Int("failures", len(failures)),
	)
	return nil
}

// ServeMode runs only the HTTP API server.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return runServer(ctx, a.buildServer(deps))
}

// FullMode starts all subsystems: collection, detection, archival, the live
// feed, and the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.buildOrchestrator(deps, true, true)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	if a.cfg.Server.Enabled {
		srv := a.buildServer(deps)
		g.Go(func() error {
			err := runServer(ctx, srv)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return err
		})
	}

	return g.Wait()
}
