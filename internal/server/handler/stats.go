package handler

import (
	"log/slog"
	"net/http"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// StatsHandler serves aggregate accuracy statistics.
type StatsHandler struct {
	markets   domain.MarketStore
	snapshots domain.SnapshotStore
	results   domain.ResolutionStore
	logger    *slog.Logger
}

// NewStatsHandler creates a StatsHandler over the given stores.
func NewStatsHandler(markets domain.MarketStore, snapshots domain.SnapshotStore, results domain.ResolutionStore, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		markets:   markets,
		snapshots: snapshots,
		results:   results,
		logger:    logger,
	}
}

// overviewResponse is the dashboard summary payload.
type overviewResponse struct {
	Markets   int64                `json:"markets"`
	Snapshots int64                `json:"snapshots"`
	Buckets   []domain.BucketStats `json:"buckets"`
}

// Overview returns tracked-data counts and per-bucket resolution accuracy.
// GET /api/stats/overview
func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	marketCount, err := h.markets.Count(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: market count failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	snapCount, err := h.snapshots.Count(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: snapshot count failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	buckets, err := h.results.BucketStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: bucket stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, overviewResponse{
		Markets:   marketCount,
		Snapshots: snapCount,
		Buckets:   buckets,
	})
}
