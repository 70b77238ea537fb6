// Package breaker wraps HTTP clients with a circuit breaker so that a dead
// upstream fails fast instead of tying up request handlers.
package breaker

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. 5xx responses are
// counted as breaker failures; 4xx are not.
type HTTPWrapper struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
}

// NewHTTPWrapper creates a breaker-wrapped HTTP client named after the
// upstream it guards.
func NewHTTPWrapper(client *http.Client, name string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &HTTPWrapper{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   name,
		logger: logger,
	}
}

// Do executes an HTTP request through the circuit breaker. When the breaker
// records a 5xx as a failure the underlying response is still returned to the
// caller so status handling stays in one place.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	out, err := hw.cb.Execute(func() (interface{}, error) {
		resp, err := hw.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &httpStatusError{code: resp.StatusCode}
		}
		return resp, nil
	})

	if err != nil {
		if _, ok := err.(*httpStatusError); ok {
			return out.(*http.Response), nil
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// CloseIdleConnections releases idle connections held by the wrapped client.
func (hw *HTTPWrapper) CloseIdleConnections() {
	hw.client.CloseIdleConnections()
}

// httpStatusError marks 5xx responses for breaker accounting.
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
