// Package middleware provides the HTTP middleware for the recall server.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/recallhq/recall/internal/api"
	"go.uber.org/zap"
)

// Auth enforces a static bearer token. With no token configured the service
// runs open, which is the intended local-only mode.
type Auth struct {
	token  string
	logger *zap.Logger
}

// NewAuth creates the auth middleware.
func NewAuth(token string, logger *zap.Logger) *Auth {
	return &Auth{token: token, logger: logger}
}

// Middleware returns the HTTP middleware function.
func (m *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			m.logger.Debug("Rejected unauthorized request", zap.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{
				Error:  "unauthorized",
				Detail: "Unauthorized",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
