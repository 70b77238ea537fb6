package handlers

import (
	"net/http"
	"strconv"

	"github.com/recallhq/recall/internal/api"
	"go.uber.org/zap"
)

// ListHandler serves GET /memories.
type ListHandler struct {
	store  MemoryStore
	logger *zap.Logger
}

// NewListHandler creates the handler.
func NewListHandler(st MemoryStore, logger *zap.Logger) *ListHandler {
	return &ListHandler{store: st, logger: logger}
}

// List returns memories newest-first with an opaque continuation cursor.
func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	memories, nextCursor, err := h.store.List(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	records := make([]api.MemoryRecord, 0, len(memories))
	for _, m := range memories {
		records = append(records, api.MemoryRecord{
			ID:             m.ID,
			Text:           m.Text,
			Tags:           m.Tags,
			Source:         m.Source,
			WrittenAt:      m.WrittenAt,
			FirstWrittenAt: m.FirstWrittenAt,
			DedupeKey:      m.DedupeKey,
			ExternalID:     m.ExternalID,
		})
	}

	resp := api.ListResponse{Memories: records}
	if nextCursor != "" {
		resp.NextCursor = &nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}
