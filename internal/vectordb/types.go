package vectordb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config controls the Qdrant client.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// ErrNotFound is returned when the target collection or point does not exist.
var ErrNotFound = errors.New("vectordb: not found")

// ConnectionError reports that Qdrant could not be reached or answered with a
// transport-level failure. Application-level misses are ErrNotFound instead.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("vectordb: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Point is a single stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// ScrollPage is one page of a scroll. NextOffset is an opaque engine value
// (point ID or composite) passed back verbatim to fetch the next page; nil
// means the scroll is exhausted.
type ScrollPage struct {
	Points     []Point
	NextOffset json.RawMessage
}

// Filter is a Qdrant filter expression, passed through as-is.
type Filter map[string]interface{}

// MustNot returns a filter excluding points whose field matches value.
func MustNot(field string, value interface{}) Filter {
	return Filter{
		"must_not": []map[string]interface{}{
			{"key": field, "match": map[string]interface{}{"value": value}},
		},
	}
}

// FieldSchema names a payload index type.
type FieldSchema string

const (
	SchemaKeyword  FieldSchema = "keyword"
	SchemaDatetime FieldSchema = "datetime"
)

// OrderBy sorts scroll results by a payload field.
type OrderBy struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"` // "asc" or "desc"
}
