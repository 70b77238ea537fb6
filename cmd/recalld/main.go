// Command recalld is the personal memory HTTP service: it embeds text via an
// Ollama-compatible endpoint, stores it in Qdrant, and exposes store, search,
// ingest, list, and delete endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/recallhq/recall/cmd/recalld/internal/handlers"
	"github.com/recallhq/recall/cmd/recalld/internal/middleware"
	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/cursor"
	"github.com/recallhq/recall/internal/embeddings"
	"github.com/recallhq/recall/internal/store"
	"github.com/recallhq/recall/internal/vectordb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Shared embedding cache is optional; the in-process LRU always runs.
	var cache embeddings.Cache
	if cfg.RedisAddr != "" {
		rc, err := embeddings.NewRedisCache(cfg.RedisAddr)
		if err != nil {
			logger.Warn("Redis cache unavailable, continuing without it",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	embedder := embeddings.NewClient(embeddings.Config{
		BaseURL:   cfg.OllamaBaseURL,
		Model:     cfg.EmbedModel,
		EmbedPath: cfg.OllamaEmbedPath,
	}, cache, logger)

	vdb := vectordb.NewClient(vectordb.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	}, logger)
	defer vdb.Close()

	// Cursors are keyed by the auth token so they survive restarts; without a
	// token a per-process secret is used and old cursors simply stop verifying.
	secret := cfg.APIAuthToken
	if secret == "" {
		secret = cursor.NewSecret()
		logger.Warn("No API_AUTH_TOKEN set: API is open and cursors will not survive a restart")
	}

	st := store.NewStore(vdb, embedder, cursor.NewCodec(secret), cfg.CollectionName, logger)

	runStartupChecks(cfg, st, vdb, embedder, logger)

	validator := api.NewValidator(cfg.MaxTextLength, cfg.MaxBatchSize)
	memoryHandler := handlers.NewMemoryHandler(st, validator, logger)
	searchHandler := handlers.NewSearchHandler(st, validator, logger)
	ingestHandler := handlers.NewIngestHandler(st, validator, logger)
	listHandler := handlers.NewListHandler(st, logger)
	healthHandler := handlers.NewHealthHandler(st, embedder, cfg.HealthCheckTimeout(), logger)

	auth := middleware.NewAuth(cfg.APIAuthToken, logger).Middleware
	observe := middleware.NewObserve(logger).Middleware

	mux := http.NewServeMux()

	// Health and metrics are intentionally unauthenticated.
	mux.Handle("GET /health", observe(http.HandlerFunc(healthHandler.Health)))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /memory", observe(auth(http.HandlerFunc(memoryHandler.Create))))
	mux.Handle("DELETE /memory/{id}", observe(auth(http.HandlerFunc(memoryHandler.Delete))))
	mux.Handle("POST /search", observe(auth(http.HandlerFunc(searchHandler.Search))))
	mux.Handle("POST /ingest", observe(auth(http.HandlerFunc(ingestHandler.Ingest))))
	mux.Handle("GET /memories", observe(auth(http.HandlerFunc(listHandler.List))))

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Memory API listening",
			zap.String("addr", addr),
			zap.String("collection", cfg.CollectionName),
			zap.String("model", cfg.EmbedModel),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// runStartupChecks logs dependency state. Everything is best-effort except a
// model mismatch, which would silently corrupt search results and is fatal.
func runStartupChecks(cfg config.Config, st *store.Store, vdb *vectordb.Client, embedder *embeddings.Client, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout())
	defer cancel()

	exists, err := vdb.CollectionExists(ctx, cfg.CollectionName)
	if err != nil {
		logger.Warn("Qdrant is not reachable at startup, continuing anyway",
			zap.String("endpoint", vdb.BaseURL()), zap.Error(err))
	} else {
		logger.Info("Qdrant is up",
			zap.String("collection", cfg.CollectionName),
			zap.Bool("exists", exists))
		if exists {
			if err := st.ValidateModel(ctx); err != nil {
				var mm *store.ModelMismatchError
				if errors.As(err, &mm) {
					logger.Fatal("Startup failure", zap.Error(mm))
				}
				logger.Warn("Could not validate collection model", zap.Error(err))
			}
		}
	}

	switch embedder.IsAvailable(ctx, cfg.HealthCheckTimeout()) {
	case embeddings.Up:
		logger.Info("Ollama is up")
	case embeddings.Down:
		logger.Warn("Ollama is not reachable at startup; embedding endpoints will return 503")
	default:
		logger.Warn("Ollama health check timed out at startup")
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
