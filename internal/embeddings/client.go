// Package embeddings provides an Ollama embedding client with request-path
// auto-detection, dimension probing, and a pluggable response cache.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/recallhq/recall/internal/breaker"
	"github.com/recallhq/recall/internal/metrics"
	"go.uber.org/zap"
)

// Known Ollama embedding paths. The newer /api/embed returns
// {"embeddings": [[...]]}, the legacy /api/embeddings returns
// {"embedding": [...]}.
const (
	PathEmbed        = "/api/embed"
	PathEmbedsLegacy = "/api/embeddings"
)

// UnavailableError reports that the embedding service is unreachable, returned
// a non-2xx status, or produced a payload of unrecognised shape.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embeddings: %s: %v", e.Reason, e.Err)
	}
	return "embeddings: " + e.Reason
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Availability is the outcome of a bounded liveness probe.
type Availability int

const (
	// Unknown means the probe timed out before a verdict.
	Unknown Availability = iota
	// Up means the service answered an embed request.
	Up
	// Down means the service is definitely unreachable or unusable.
	Down
)

// Config controls the embedding client.
type Config struct {
	BaseURL   string
	Model     string
	EmbedPath string // preferred path; auto-detection falls back to the other known path
	Timeout   time.Duration
	CacheTTL  time.Duration
	MaxLRU    int
}

// Client calls a remote Ollama-compatible embedding endpoint. The first path
// that succeeds is pinned for the process lifetime.
type Client struct {
	cfg   Config
	httpw *breaker.HTTPWrapper
	log   *zap.Logger
	cache Cache
	lru   *localLRU

	mu          sync.Mutex
	workingPath string
	dimension   int
}

// NewClient creates an embedding client. cache may be nil; a small in-process
// LRU is always used in front of it.
func NewClient(cfg Config, cache Cache, logger *zap.Logger) *Client {
	if cfg.EmbedPath == "" {
		cfg.EmbedPath = PathEmbed
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxLRU == 0 {
		cfg.MaxLRU = 2048
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		httpw: breaker.NewHTTPWrapper(httpClient, "ollama", logger),
		log:   logger,
		cache: cache,
		lru:   newLocalLRU(cfg.MaxLRU),
	}
}

// Model returns the configured embedding model name.
func (c *Client) Model() string { return c.cfg.Model }

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Embedding  []float64   `json:"embedding"`
}

func (c *Client) tryPath(ctx context.Context, path, text string) ([]float32, error) {
	url := c.cfg.BaseURL + path
	buf, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: text})
	if err != nil {
		return nil, &UnavailableError{Reason: "encode request", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, &UnavailableError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, &UnavailableError{Reason: "cannot reach " + c.cfg.BaseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UnavailableError{
			Reason: fmt.Sprintf("http status %d from %s: %s", resp.StatusCode, path, string(body)),
		}
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, &UnavailableError{Reason: "decode response", Err: err}
	}

	var vec []float64
	switch {
	case len(er.Embeddings) > 0:
		vec = er.Embeddings[0]
	case len(er.Embedding) > 0:
		vec = er.Embedding
	default:
		return nil, &UnavailableError{Reason: "unexpected response shape"}
	}

	out := make([]float32, len(vec))
	for i, f := range vec {
		out[i] = float32(f)
	}
	return out, nil
}

// embedRemote performs the actual HTTP call, bypassing all caches. On first
// use it auto-detects which of the two known request paths the server accepts;
// the first success pins the path for the process lifetime with no
// re-detection on later failures.
func (c *Client) embedRemote(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	pinned := c.workingPath
	c.mu.Unlock()

	if pinned != "" {
		return c.tryPath(ctx, pinned, text)
	}

	fallback := PathEmbedsLegacy
	if c.cfg.EmbedPath == PathEmbedsLegacy {
		fallback = PathEmbed
	}

	var lastErr error
	for _, path := range []string{c.cfg.EmbedPath, fallback} {
		vec, err := c.tryPath(ctx, path, text)
		if err != nil {
			lastErr = err
			continue
		}

		c.mu.Lock()
		if c.workingPath == "" {
			c.workingPath = path
			c.log.Info("Ollama embed path resolved", zap.String("path", path))
		}
		c.mu.Unlock()
		return vec, nil
	}

	return nil, &UnavailableError{Reason: "no working embed path", Err: lastErr}
}

// Embed returns the vector for text, consulting the in-process LRU and the
// shared cache before calling the remote service.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.cfg.Model, text)

	if v, ok := c.lru.Get(key); ok {
		metrics.RecordEmbedding(c.cfg.Model, "lru_hit", 0)
		return v, nil
	}
	if c.cache != nil {
		if v, ok := c.cache.Get(ctx, key); ok {
			c.lru.Set(key, v, 30*time.Minute)
			metrics.RecordEmbedding(c.cfg.Model, "cache_hit", 0)
			return v, nil
		}
	}

	start := time.Now()
	vec, err := c.embedRemote(ctx, text)
	if err != nil {
		metrics.RecordEmbedding(c.cfg.Model, "error", time.Since(start).Seconds())
		return nil, err
	}
	c.finish(ctx, key, vec)
	metrics.RecordEmbedding(c.cfg.Model, "ok", time.Since(start).Seconds())
	return vec, nil
}

func (c *Client) finish(ctx context.Context, key string, vec []float32) {
	c.lru.Set(key, vec, 30*time.Minute)
	if c.cache != nil {
		c.cache.Set(ctx, key, vec, c.cfg.CacheTTL)
	}
}

// ProbeDimension embeds a fixed probe string once and caches the vector
// length.
func (c *Client) ProbeDimension(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.dimension > 0 {
		dim := c.dimension
		c.mu.Unlock()
		return dim, nil
	}
	c.mu.Unlock()

	vec, err := c.Embed(ctx, "probe")
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(vec)
	}
	dim := c.dimension
	c.mu.Unlock()
	return dim, nil
}

// IsAvailable is a bounded liveness probe: Up if the service answers, Down if
// it is definitely unreachable, Unknown if the probe timed out. It bypasses
// the caches so a stale hit cannot mask a dead upstream, and never returns an
// error.
func (c *Client) IsAvailable(ctx context.Context, timeout time.Duration) Availability {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := c.embedRemote(probeCtx, "ping")
	switch {
	case err == nil:
		return Up
	case errors.Is(err, context.DeadlineExceeded):
		return Unknown
	default:
		return Down
	}
}
