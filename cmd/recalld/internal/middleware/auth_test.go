package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthOpenWithoutToken(t *testing.T) {
	h := NewAuth("", zap.NewNop()).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/memories", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingAndWrongTokens(t *testing.T) {
	h := NewAuth("s3cret", zap.NewNop()).Middleware(okHandler())

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic s3cret",
		"wrong token":  "Bearer nope",
		"bare token":   "s3cret",
	} {
		req := httptest.NewRequest(http.MethodGet, "/memories", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "unauthorized", name)
	}
}

func TestAuthAcceptsCorrectToken(t *testing.T) {
	h := NewAuth("s3cret", zap.NewNop()).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/memories", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
