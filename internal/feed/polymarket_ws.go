// Package feed streams real-time prices from the Polymarket CLOB WebSocket
// into the snapshot store, giving the move detector sub-minute resolution
// between collector cycles.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/platform/polymarket"
)

const (
	// insertTimeout bounds each snapshot write so a slow database cannot
	// back up the WebSocket read loop.
	insertTimeout = 5 * time.Second

	// refreshInterval is how often the tracked market set is rebuilt from
	// the market store.
	refreshInterval = 10 * time.Minute
)

// LiveFeed subscribes to price frames for the yes-side tokens of tracked
// markets and persists each frame as a snapshot. The tracked set is the
// top active markets by volume and is refreshed periodically.
type LiveFeed struct {
	wsURL     string
	markets   domain.MarketStore
	snapshots domain.SnapshotStore
	limit     int
	logger    *slog.Logger

	mu      sync.RWMutex
	byToken map[string]string // yes token ID -> market ID
}

// NewLiveFeed creates a feed tracking up to limit active markets.
func NewLiveFeed(wsURL string, markets domain.MarketStore, snapshots domain.SnapshotStore, limit int, logger *slog.Logger) *LiveFeed {
	if limit <= 0 {
		limit = 100
	}
	return &LiveFeed{
		wsURL:     wsURL,
		markets:   markets,
		snapshots: snapshots,
		limit:     limit,
		logger:    logger.With(slog.String("component", "live_feed")),
		byToken:   make(map[string]string),
	}
}

// Run connects, subscribes, and streams until ctx is cancelled. The
// underlying client handles reconnection; Run only manages the tracked set.
func (f *LiveFeed) Run(ctx context.Context) error {
	tokens, err := f.refreshIndex(ctx)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		f.logger.Info("no active markets to track, live feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnPriceUpdate(f.handleUpdate)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, tokens); err != nil {
		return err
	}
	f.logger.Info("live feed subscribed", slog.Int("assets", len(tokens)))

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("live feed stopped")
			return ctx.Err()
		case <-ticker.C:
			added, err := f.refreshSubscriptions(ctx, client)
			if err != nil {
				f.logger.Warn("tracked set refresh failed", slog.String("error", err.Error()))
				continue
			}
			if added > 0 {
				f.logger.Info("tracking new markets", slog.Int("added", added))
			}
		}
	}
}

// refreshIndex rebuilds the token index from the store and returns every
// tracked token ID.
func (f *LiveFeed) refreshIndex(ctx context.Context) ([]string, error) {
	active, err := f.markets.ListActive(ctx, domain.ListOpts{Limit: f.limit})
	if err != nil {
		return nil, err
	}

	index := make(map[string]string, len(active))
	tokens := make([]string, 0, len(active))
	for _, m := range active {
		if m.TokenIDs[0] == "" {
			continue
		}
		index[m.TokenIDs[0]] = m.ID
		tokens = append(tokens, m.TokenIDs[0])
	}

	f.mu.Lock()
	f.byToken = index
	f.mu.Unlock()

	return tokens, nil
}

// refreshSubscriptions rebuilds the index and subscribes to tokens that were
// not tracked before. Stale tokens stay subscribed until reconnect; their
// frames are dropped by the index lookup.
func (f *LiveFeed) refreshSubscriptions(ctx context.Context, client *polymarket.WSClient) (int, error) {
	f.mu.RLock()
	known := make(map[string]bool, len(f.byToken))
	for token := range f.byToken {
		known[token] = true
	}
	f.mu.RUnlock()

	tokens, err := f.refreshIndex(ctx)
	if err != nil {
		return 0, err
	}

	var fresh []string
	for _, token := range tokens {
		if !known[token] {
			fresh = append(fresh, token)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := client.Subscribe(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// handleUpdate maps a price frame back to its market and persists it.
func (f *LiveFeed) handleUpdate(u polymarket.WSPriceUpdate) {
	f.mu.RLock()
	marketID, ok := f.byToken[u.AssetID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	sample, ok := u.ToSample(marketID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	snap := domain.Snapshot{
		MarketID:    sample.MarketID,
		Timestamp:   sample.Timestamp,
		Probability: sample.Probability,
	}
	if err := f.snapshots.Insert(ctx, snap); err != nil {
		f.logger.Warn("snapshot insert failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
