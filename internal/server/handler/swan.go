package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/swan"
)

// SwanHandler serves on-demand reversal scans and the recorded black swan
// history.
type SwanHandler struct {
	svc     *swan.Service
	results domain.ResolutionStore
	spec    domain.WindowSpec // defaults for scan requests
	logger  *slog.Logger
}

// NewSwanHandler creates a SwanHandler. spec provides the default scan
// parameters; requests may override them per call.
func NewSwanHandler(svc *swan.Service, results domain.ResolutionStore, spec domain.WindowSpec, logger *slog.Logger) *SwanHandler {
	return &SwanHandler{
		svc:     svc,
		results: results,
		spec:    spec,
		logger:  logger,
	}
}

// scanRequest is the optional body of a scan request. Absent fields fall
// back to the configured defaults.
type scanRequest struct {
	OffsetsDays     []int    `json:"offsets_days"`
	EarlyThreshold  *float64 `json:"early_threshold"`
	FinalThreshold  *float64 `json:"final_threshold"`
	MinVolume       *float64 `json:"min_volume"`
	MaxLookbackDays *int     `json:"max_lookback_days"`
}

// scanResponse is the JSON shape of a scan result.
type scanResponse struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	OffsetsDays     []int                   `json:"offsets_days"`
	EarlyThreshold  float64                 `json:"early_threshold"`
	FinalThreshold  float64                 `json:"final_threshold"`
	Scanned         int                     `json:"scanned"`
	BlackSwans      []domain.Classification `json:"black_swans"`
	Classifications []domain.Classification `json:"classifications"`
	Errors          map[string]string       `json:"errors,omitempty"`
}

// Scan runs a reversal scan over recently resolved markets.
// POST /api/scan
func (h *SwanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	spec, err := h.specFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Run(r.Context(), spec)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSpec) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: scan failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "scan failed")
		return
	}

	resp := scanResponse{
		GeneratedAt:     result.GeneratedAt,
		OffsetsDays:     result.Spec.OffsetsDays,
		EarlyThreshold:  result.Spec.EarlyThreshold,
		FinalThreshold:  result.Spec.FinalThreshold,
		Scanned:         result.Scanned,
		BlackSwans:      result.BlackSwans,
		Classifications: result.Classifications,
	}
	if len(result.Errors) > 0 {
		resp.Errors = make(map[string]string, len(result.Errors))
		for id, merr := range result.Errors {
			resp.Errors[id] = merr.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// specFromRequest merges an optional request body over the default spec.
func (h *SwanHandler) specFromRequest(r *http.Request) (domain.WindowSpec, error) {
	spec := h.spec

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil || len(body) == 0 {
		return spec, nil
	}

	var req scanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.WindowSpec{}, errors.New("malformed scan request body")
	}

	if len(req.OffsetsDays) > 0 {
		spec.OffsetsDays = req.OffsetsDays
	}
	if req.EarlyThreshold != nil {
		spec.EarlyThreshold = *req.EarlyThreshold
	}
	if req.FinalThreshold != nil {
		spec.FinalThreshold = *req.FinalThreshold
	}
	if req.MinVolume != nil {
		spec.MinVolume = *req.MinVolume
	}
	if req.MaxLookbackDays != nil {
		spec.MaxLookbackDays = *req.MaxLookbackDays
	}
	return spec, nil
}

// ListBlackSwans returns recorded black swan resolutions, most recent first.
// GET /api/blackswans?limit=50
func (h *SwanHandler) ListBlackSwans(w http.ResponseWriter, r *http.Request) {
	swans, err := h.results.ListBlackSwans(r.Context(), parseListOpts(r).Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list black swans failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list black swans")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"black_swans": swans})
}
