package handlers

import (
	"fmt"
	"net/http"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/embeddings"
	"github.com/recallhq/recall/internal/store"
	"github.com/recallhq/recall/internal/vectordb"
	"go.uber.org/zap"
)

// IngestHandler serves POST /ingest.
type IngestHandler struct {
	store     MemoryStore
	validator *api.Validator
	logger    *zap.Logger
}

// NewIngestHandler creates the handler.
func NewIngestHandler(st MemoryStore, validator *api.Validator, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{store: st, validator: validator, logger: logger}
}

// Ingest stores a batch of memories. Items fail independently: one bad or
// unstorable item never aborts the rest, and the response reports each failure
// by index.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateIngest(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	resp := api.IngestResponse{Errors: []api.IngestError{}}
	for i, item := range req.Items {
		if len([]rune(item.Text)) > h.validator.MaxTextLength() {
			resp.Failed++
			resp.Errors = append(resp.Errors, api.IngestError{
				Index: i,
				Error: fmt.Sprintf("text exceeds maximum length of %d characters", h.validator.MaxTextLength()),
			})
			continue
		}

		_, _, err := h.store.StoreMemory(r.Context(), store.StoreInput{
			Text:      item.Text,
			Tags:      item.Tags,
			Source:    sourceOrDefault(item.Source),
			DedupeKey: item.DedupeKey,
		})
		if err != nil {
			resp.Failed++
			resp.Errors = append(resp.Errors, api.IngestError{Index: i, Error: ingestErrorMessage(err)})
			continue
		}
		resp.Succeeded++
	}

	writeJSON(w, http.StatusOK, resp)
}

func ingestErrorMessage(err error) string {
	switch {
	case embeddings.IsUnavailable(err):
		return "embedding_unavailable: " + err.Error()
	case vectordb.IsConnectionError(err):
		return "qdrant_unavailable: " + err.Error()
	default:
		return err.Error()
	}
}
