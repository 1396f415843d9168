package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner is any long-running component driven by the orchestrator.
type Runner interface {
	Run(ctx context.Context) error
}

// OrchestratorConfig holds the cadence of each background loop.
type OrchestratorConfig struct {
	CollectInterval  time.Duration
	MoveScanInterval time.Duration
	ArchiveCron      string
}

// Orchestrator manages all pipeline goroutines: collection, resolution
// analysis, move scanning, cold-storage archival, and the live price feed.
// Any component may be nil; its loop is simply not started.
type Orchestrator struct {
	collector *Collector
	analyzer  *Analyzer
	moveScan  *MoveScan
	archiver  *Archiver
	liveFeed  Runner
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator that coordinates the background
// loops.
func NewOrchestrator(
	collector *Collector,
	analyzer *Analyzer,
	moveScan *MoveScan,
	archiver *Archiver,
	liveFeed Runner,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		collector: collector,
		analyzer:  analyzer,
		moveScan:  moveScan,
		archiver:  archiver,
		liveFeed:  liveFeed,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts the configured loops as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("collect_interval", o.cfg.CollectInterval),
		slog.Duration("move_scan_interval", o.cfg.MoveScanInterval),
		slog.String("archive_cron", o.cfg.ArchiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.collector != nil {
		g.Go(func() error {
			o.logger.Info("starting collector loop")
			err := o.collector.RunLoop(ctx, o.cfg.CollectInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("collector: %w", err)
		})
	}

	if o.analyzer != nil {
		g.Go(func() error {
			o.logger.Info("starting analyzer loop")
			err := o.analyzer.RunLoop(ctx, o.cfg.CollectInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("analyzer: %w", err)
		})
	}

	if o.moveScan != nil {
		g.Go(func() error {
			o.logger.Info("starting move scan loop")
			err := o.moveScan.RunLoop(ctx, o.cfg.MoveScanInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("move scan: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.cfg.ArchiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if o.liveFeed != nil {
		g.Go(func() error {
			o.logger.Info("starting live price feed")
			err := o.liveFeed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("live feed: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
