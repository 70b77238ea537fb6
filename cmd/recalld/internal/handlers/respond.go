// Package handlers implements the recall HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/cursor"
	"github.com/recallhq/recall/internal/embeddings"
	"github.com/recallhq/recall/internal/store"
	"github.com/recallhq/recall/internal/vectordb"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, detail interface{}) {
	writeJSON(w, status, api.ErrorResponse{Error: code, Detail: detail})
}

// writeStoreError maps domain errors onto the uniform error body: dependency
// outages are 503 with a code naming the dependency, missing records are 404,
// bad cursors 400, anything else 500.
func writeStoreError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case embeddings.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "embedding_unavailable", err.Error())
	case vectordb.IsConnectionError(err):
		writeError(w, http.StatusServiceUnavailable, "qdrant_unavailable", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cursor.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "invalid_cursor", "Cursor is invalid or tampered")
	default:
		logger.Error("Unexpected error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Unexpected error")
	}
}

// decodeBody parses a JSON request body. Malformed bodies are validation
// errors, same as failed field constraints.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return false
	}
	return true
}
