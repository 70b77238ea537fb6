package handlers

import (
	"net/http"

	"github.com/recallhq/recall/internal/api"
	"go.uber.org/zap"
)

// SearchHandler serves POST /search.
type SearchHandler struct {
	store     MemoryStore
	validator *api.Validator
	logger    *zap.Logger
}

// NewSearchHandler creates the handler.
func NewSearchHandler(st MemoryStore, validator *api.Validator, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{store: st, validator: validator, logger: logger}
}

// Search embeds the query and returns the most similar memories.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateSearch(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	includeText := true
	if req.IncludeText != nil {
		includeText = *req.IncludeText
	}

	hits, err := h.store.Search(r.Context(), req.Query, *req.TopK, includeText)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	results := make([]api.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, api.SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Tags:      hit.Tags,
			Source:    hit.Source,
			WrittenAt: hit.WrittenAt,
			Text:      hit.Text,
		})
	}
	writeJSON(w, http.StatusOK, api.SearchResponse{Results: results})
}
