package handlers

import (
	"context"
	"net/http"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/store"
	"go.uber.org/zap"
)

// MemoryStore is the slice of the store the handlers need.
type MemoryStore interface {
	StoreMemory(ctx context.Context, in store.StoreInput) (id, strategy string, err error)
	Search(ctx context.Context, query string, topK int, includeText bool) ([]store.SearchHit, error)
	List(ctx context.Context, limit int, cursor string) ([]store.Memory, string, error)
	Delete(ctx context.Context, memoryID string) error
}

// MemoryHandler serves the single-memory endpoints.
type MemoryHandler struct {
	store     MemoryStore
	validator *api.Validator
	logger    *zap.Logger
}

// NewMemoryHandler creates the handler.
func NewMemoryHandler(st MemoryStore, validator *api.Validator, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{store: st, validator: validator, logger: logger}
}

// Create handles POST /memory. A fresh record answers 201, an overwrite of a
// deduped record answers 200.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.MemoryCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateMemoryCreate(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	id, strategy, err := h.store.StoreMemory(r.Context(), store.StoreInput{
		Text:       req.Text,
		Tags:       req.Tags,
		Source:     sourceOrDefault(req.Source),
		DedupeKey:  req.DedupeKey,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if strategy == "random" {
		status = http.StatusCreated
	}
	writeJSON(w, status, api.MemoryCreateResponse{ID: id, IDStrategy: strategy})
}

// Delete handles DELETE /memory/{id}.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteResponse{Status: "deleted"})
}

func sourceOrDefault(source string) string {
	if source == "" {
		return "cli"
	}
	return source
}
