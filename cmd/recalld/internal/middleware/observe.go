package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/recallhq/recall/internal/metrics"
	"go.uber.org/zap"
)

// Observe logs each request and records per-route counters.
type Observe struct {
	logger *zap.Logger
}

// NewObserve creates the observation middleware.
func NewObserve(logger *zap.Logger) *Observe {
	return &Observe{logger: logger}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware returns the HTTP middleware function.
func (m *Observe) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
