// Package metrics exposes Prometheus metrics for the recall service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_embedding_duration_seconds",
			Help:    "Embedding request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Vector store metrics
	VectorOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_vector_operations_total",
			Help: "Total number of vector store operations",
		},
		[]string{"op", "status"},
	)

	VectorOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_vector_operation_duration_seconds",
			Help:    "Vector store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	MemoriesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_memories_stored_total",
			Help: "Total number of memories stored",
		},
		[]string{"id_strategy"},
	)
)

// RecordEmbedding records the outcome of one embedding request.
func RecordEmbedding(model, status string, seconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if seconds > 0 {
		EmbeddingDuration.WithLabelValues(model).Observe(seconds)
	}
}

// RecordVectorOp records the outcome of one vector store operation.
func RecordVectorOp(op, status string, seconds float64) {
	VectorOps.WithLabelValues(op, status).Inc()
	if seconds > 0 {
		VectorOpDuration.WithLabelValues(op).Observe(seconds)
	}
}
