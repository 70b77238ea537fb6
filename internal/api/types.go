// Package api holds the wire types shared by the HTTP server, the Go client,
// the CLI, and the MCP bridge.
package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MemoryCreateRequest is the body of POST /memory.
type MemoryCreateRequest struct {
	Text       string   `json:"text" validate:"required,min=1"`
	Tags       []string `json:"tags" validate:"max=20,dive,max=100"`
	Source     string   `json:"source" validate:"max=200"`
	DedupeKey  *string  `json:"dedupe_key,omitempty"`
	ExternalID *string  `json:"external_id,omitempty"`
}

// MemoryCreateResponse reports the stored ID and how it was chosen
// ("random" or "deduped").
type MemoryCreateResponse struct {
	ID         string `json:"id"`
	IDStrategy string `json:"id_strategy"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query       string `json:"query" validate:"required,min=1"`
	TopK        *int   `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	IncludeText *bool  `json:"include_text,omitempty"`
}

// SearchResult is one similarity hit.
type SearchResult struct {
	ID        string   `json:"id"`
	Score     float64  `json:"score"`
	Tags      []string `json:"tags"`
	Source    string   `json:"source"`
	WrittenAt string   `json:"written_at"`
	Text      *string  `json:"text,omitempty"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// IngestItem is one entry of a batch ingest.
type IngestItem struct {
	Text      string   `json:"text" validate:"required,min=1"`
	Tags      []string `json:"tags" validate:"max=20,dive,max=100"`
	Source    string   `json:"source" validate:"max=200"`
	DedupeKey *string  `json:"dedupe_key,omitempty"`
}

// IngestRequest is the body of POST /ingest.
type IngestRequest struct {
	Items []IngestItem `json:"items" validate:"required,min=1,dive"`
}

// IngestError reports a failed item by its position in the batch.
type IngestError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestResponse summarises a batch ingest. Items fail independently.
type IngestResponse struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    []IngestError `json:"errors"`
}

// MemoryRecord is a stored memory as returned by GET /memories.
type MemoryRecord struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Tags           []string `json:"tags"`
	Source         string   `json:"source"`
	WrittenAt      string   `json:"written_at"`
	FirstWrittenAt string   `json:"first_written_at"`
	DedupeKey      *string  `json:"dedupe_key"`
	ExternalID     *string  `json:"external_id"`
}

// ListResponse is the body returned by GET /memories. NextCursor is null when
// the listing is exhausted.
type ListResponse struct {
	Memories   []MemoryRecord `json:"memories"`
	NextCursor *string        `json:"next_cursor"`
}

// DeleteResponse is the body returned by DELETE /memory/{id}.
type DeleteResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports overall and per-dependency health. A null dependency
// field means the probe timed out before a verdict.
type HealthResponse struct {
	Status string `json:"status"` // "ok" | "degraded" | "unavailable"
	Qdrant *bool  `json:"qdrant"`
	Ollama *bool  `json:"ollama"`
}

// ErrorResponse is the uniform error body: a stable machine-readable code and
// a human-readable detail.
type ErrorResponse struct {
	Error  string      `json:"error"`
	Detail interface{} `json:"detail"`
}

// Validator applies both the static struct tags and the deployment-dependent
// limits (max text length, max batch size).
type Validator struct {
	v             *validator.Validate
	maxTextLength int
	maxBatchSize  int
}

// NewValidator builds a validator with the given deployment limits.
func NewValidator(maxTextLength, maxBatchSize int) *Validator {
	return &Validator{
		v:             validator.New(),
		maxTextLength: maxTextLength,
		maxBatchSize:  maxBatchSize,
	}
}

// MaxTextLength returns the configured text limit.
func (va *Validator) MaxTextLength() int { return va.maxTextLength }

func (va *Validator) textTooLong(kind, text string) error {
	if len([]rune(text)) > va.maxTextLength {
		return fmt.Errorf("%s exceeds maximum length of %d characters", kind, va.maxTextLength)
	}
	return nil
}

// ValidateMemoryCreate checks a store request.
func (va *Validator) ValidateMemoryCreate(req *MemoryCreateRequest) error {
	if err := va.v.Struct(req); err != nil {
		return err
	}
	return va.textTooLong("text", req.Text)
}

// ValidateSearch checks a search request and applies the TopK default. Only
// an omitted top_k gets the default; an explicit 0 fails the bounds check.
func (va *Validator) ValidateSearch(req *SearchRequest) error {
	if err := va.v.Struct(req); err != nil {
		return err
	}
	if req.TopK == nil {
		topK := 5
		req.TopK = &topK
	}
	return va.textTooLong("query", req.Query)
}

// ValidateIngest checks the batch envelope and each item's static limits. Text
// length is deliberately not checked here: overlong items fail individually
// during processing so the rest of the batch still lands.
func (va *Validator) ValidateIngest(req *IngestRequest) error {
	if err := va.v.Struct(req); err != nil {
		return err
	}
	if len(req.Items) > va.maxBatchSize {
		return fmt.Errorf("batch size exceeds maximum of %d", va.maxBatchSize)
	}
	return nil
}
