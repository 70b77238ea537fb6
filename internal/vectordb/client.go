// Package vectordb is a minimal Qdrant HTTP client covering the operations the
// memory store needs: collection bootstrap, upsert, retrieve, search, ordered
// scroll, and delete.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/recallhq/recall/internal/breaker"
	"github.com/recallhq/recall/internal/metrics"
	"go.uber.org/zap"
)

// Client talks to a single Qdrant instance over its REST API.
type Client struct {
	cfg   Config
	base  string
	httpw *breaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient creates a Qdrant client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		base:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpw: breaker.NewHTTPWrapper(httpClient, "qdrant", logger),
		log:   logger,
	}
}

// BaseURL returns the resolved Qdrant endpoint, for logging.
func (c *Client) BaseURL() string { return c.base }

// do issues one request and decodes the JSON body into out (when non-nil).
// Non-2xx statuses become ErrNotFound or ConnectionError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	status := "ok"
	switch {
	case err == nil:
	case err == ErrNotFound:
		status = "not_found"
	default:
		status = "error"
	}
	metrics.RecordVectorOp(op, status, time.Since(start).Seconds())
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &ConnectionError{Op: "encode request", Err: err}
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return &ConnectionError{Op: "build request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpw.Do(req)
	if err != nil {
		return &ConnectionError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(string(msg)), "not found") {
			return ErrNotFound
		}
		return &ConnectionError{
			Op:  method + " " + path,
			Err: fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ConnectionError{Op: "decode response", Err: err}
		}
	}
	return nil
}

// CollectionExists reports whether the collection is present.
func (c *Client) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var resp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/exists", collection)
	if err := c.do(ctx, "collection_exists", http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Result.Exists, nil
}

// CreateCollection creates a cosine-distance collection of the given
// dimension.
func (c *Client) CreateCollection(ctx context.Context, collection string, dim int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
		"on_disk_payload": false,
	}
	path := "/collections/" + collection
	return c.do(ctx, "create_collection", http.MethodPut, path, body, nil)
}

// CreatePayloadIndex creates (idempotently) a payload index on field.
func (c *Client) CreatePayloadIndex(ctx context.Context, collection, field string, schema FieldSchema) error {
	body := map[string]interface{}{
		"field_name":   field,
		"field_schema": string(schema),
	}
	path := fmt.Sprintf("/collections/%s/index", collection)
	return c.do(ctx, "create_index", http.MethodPut, path, body, nil)
}

// Upsert writes points and waits for them to be durable.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	body := map[string]interface{}{"points": points}
	path := fmt.Sprintf("/collections/%s/points?wait=true", collection)
	return c.do(ctx, "upsert", http.MethodPut, path, body, nil)
}

// Retrieve fetches points by ID, payloads only. Missing IDs are simply absent
// from the result.
func (c *Client) Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error) {
	body := map[string]interface{}{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result []Point `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points", collection)
	if err := c.do(ctx, "retrieve", http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Search runs a similarity query against the collection.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	var resp struct {
		Result []ScoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", collection)
	if err := c.do(ctx, "search", http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Scroll pages through the collection ordered by a payload field. offset is
// the engine value from the previous page, passed through verbatim; nil starts
// from the beginning.
func (c *Client) Scroll(ctx context.Context, collection string, limit int, offset json.RawMessage, orderBy *OrderBy, filter Filter) (*ScrollPage, error) {
	body := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if offset != nil {
		body["offset"] = offset
	}
	if orderBy != nil {
		body["order_by"] = orderBy
	}
	if filter != nil {
		body["filter"] = filter
	}
	var resp struct {
		Result struct {
			Points         []Point         `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", collection)
	if err := c.do(ctx, "scroll", http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	next := resp.Result.NextPageOffset
	if string(next) == "null" {
		next = nil
	}
	return &ScrollPage{Points: resp.Result.Points, NextOffset: next}, nil
}

// Delete removes points by ID and waits for the operation to land.
func (c *Client) Delete(ctx context.Context, collection string, ids []string) error {
	body := map[string]interface{}{"points": ids}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", collection)
	return c.do(ctx, "delete", http.MethodPost, path, body, nil)
}

// Ping checks connectivity by listing collections.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/collections", nil, nil)
}

// Close releases idle upstream connections.
func (c *Client) Close() {
	c.httpw.CloseIdleConnections()
}
