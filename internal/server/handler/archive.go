package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// archivePrefix is the key namespace the archiver writes under; listing is
// confined to it so the API cannot browse arbitrary bucket contents.
const archivePrefix = "snapshots/"

// ArchiveHandler serves snapshot batches that have been moved to cold
// storage, so history beyond the retention window stays reachable.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// List returns the keys of archived snapshot batches.
// GET /api/archive?prefix=snapshots/20260831T030000/
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = archivePrefix
	}
	if !strings.HasPrefix(prefix, archivePrefix) {
		writeError(w, http.StatusBadRequest, "prefix must start with "+archivePrefix)
		return
	}

	keys, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list archive",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prefix": prefix,
		"keys":   keys,
	})
}

// Get streams one archived batch back as JSON Lines.
// GET /api/archive/{key...}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if !strings.HasPrefix(key, archivePrefix) {
		writeError(w, http.StatusBadRequest, "key must start with "+archivePrefix)
		return
	}

	body, err := h.blobs.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive object not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to read archive object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive object")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
