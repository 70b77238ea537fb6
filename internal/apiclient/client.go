// Package apiclient is a thin Go client for the recall HTTP API, shared by
// the CLI and the MCP bridge.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/config"
)

// DefaultBaseURL is where a locally served recall API listens.
const DefaultBaseURL = "http://127.0.0.1:8100"

// APIError is a non-2xx answer from the service, carrying its machine-readable
// code and human-readable detail.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Detail)
}

// ConnectionError means the service itself could not be reached.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach recall service at %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Client calls the recall API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. An empty baseURL means DefaultBaseURL; an empty token
// means unauthenticated.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// FromEnv resolves the endpoint from RECALL_API_URL and RECALL_API_TOKEN,
// falling back to the shared env file, then to defaults.
func FromEnv() *Client {
	if path := config.EnvFile(); path != "" {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path) // set variables win over the file
		}
	}
	return New(os.Getenv("RECALL_API_URL"), os.Getenv("RECALL_API_TOKEN"))
}

// BaseURL returns the resolved endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.doStatus(ctx, method, path, body, out, false)
	return err
}

// doStatus issues one request. With allowErrorBody the JSON body is decoded
// into out even on non-2xx statuses (the health endpoint answers 503 with a
// meaningful body).
func (c *Client) doStatus(ctx context.Context, method, path string, body, out interface{}, allowErrorBody bool) (int, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &ConnectionError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && !allowErrorBody {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "http_error", Detail: string(raw)}
		var er api.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			apiErr.Code = er.Error
			apiErr.Detail = fmt.Sprintf("%v", er.Detail)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// CreateMemory stores one memory.
func (c *Client) CreateMemory(ctx context.Context, req api.MemoryCreateRequest) (*api.MemoryCreateResponse, error) {
	var out api.MemoryCreateResponse
	if err := c.do(ctx, http.MethodPost, "/memory", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a similarity search.
func (c *Client) Search(ctx context.Context, req api.SearchRequest) (*api.SearchResponse, error) {
	var out api.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest stores a batch of memories.
func (c *Client) Ingest(ctx context.Context, req api.IngestRequest) (*api.IngestResponse, error) {
	var out api.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/ingest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List pages through stored memories, newest first.
func (c *Client) List(ctx context.Context, limit int, cursor string) (*api.ListResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var out api.ListResponse
	if err := c.do(ctx, http.MethodGet, "/memories?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a memory by ID.
func (c *Client) Delete(ctx context.Context, id string) (*api.DeleteResponse, error) {
	var out api.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, "/memory/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the service. The body is meaningful even when the service
// answers 503, so the status code is returned alongside it.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, int, error) {
	var out api.HealthResponse
	status, err := c.doStatus(ctx, http.MethodGet, "/health", nil, &out, true)
	if err != nil {
		return nil, status, err
	}
	return &out, status, nil
}
