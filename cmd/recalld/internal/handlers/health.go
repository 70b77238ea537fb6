package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/embeddings"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pinger checks vector database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AvailabilityProber checks embedding service liveness.
type AvailabilityProber interface {
	IsAvailable(ctx context.Context, timeout time.Duration) embeddings.Availability
}

// HealthHandler serves GET /health. Each dependency is probed with a bounded
// timeout; a probe that times out reports null rather than guessing.
type HealthHandler struct {
	store    Pinger
	embedder AvailabilityProber
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHealthHandler creates the handler.
func NewHealthHandler(store Pinger, embedder AvailabilityProber, timeout time.Duration, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, embedder: embedder, timeout: timeout, logger: logger}
}

// Health probes both dependencies in parallel. "ok" needs both up; a reachable
// vector database with a dead embedder is "degraded" (reads of stored data
// still work); otherwise "unavailable". Only "ok" answers 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	var qdrant, ollama *bool

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		err := h.store.Ping(probeCtx)
		switch {
		case err == nil:
			qdrant = boolPtr(true)
		case errors.Is(err, context.DeadlineExceeded):
			// timed out: verdict unknown
		default:
			qdrant = boolPtr(false)
		}
		return nil
	})
	g.Go(func() error {
		switch h.embedder.IsAvailable(ctx, h.timeout) {
		case embeddings.Up:
			ollama = boolPtr(true)
		case embeddings.Down:
			ollama = boolPtr(false)
		}
		return nil
	})
	_ = g.Wait()

	overall := "unavailable"
	switch {
	case isTrue(qdrant) && isTrue(ollama):
		overall = "ok"
	case isTrue(qdrant):
		overall = "degraded"
	}

	status := http.StatusServiceUnavailable
	if overall == "ok" {
		status = http.StatusOK
	}
	writeJSON(w, status, api.HealthResponse{Status: overall, Qdrant: qdrant, Ollama: ollama})
}

func boolPtr(b bool) *bool { return &b }

func isTrue(b *bool) bool { return b != nil && *b }
