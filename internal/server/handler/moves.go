package handler

import (
	"log/slog"
	"net/http"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// MoveHandler serves recorded large-move events.
type MoveHandler struct {
	moves  domain.MoveStore
	logger *slog.Logger
}

// NewMoveHandler creates a MoveHandler over the given store.
func NewMoveHandler(moves domain.MoveStore, logger *slog.Logger) *MoveHandler {
	return &MoveHandler{moves: moves, logger: logger}
}

// ListRecent returns the most recent large moves across all markets.
// GET /api/moves?limit=50
func (h *MoveHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	events, err := h.moves.ListRecent(r.Context(), parseListOpts(r).Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list moves failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list moves")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"moves": events})
}

// ListByMarket returns large moves for a single market.
// GET /api/markets/{id}/moves
func (h *MoveHandler) ListByMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	events, err := h.moves.ListByMarket(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market moves failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list moves")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"moves":     events,
	})
}
