package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
)

// AuthMiddleware guards the control API with a single static API key.
// The key comes from QA_API_KEY; when unset the API is open, which is
// the expected state for a local, single-operator deployment.
type AuthMiddleware struct {
	header string
	apiKey string
}

// NewAuthMiddleware reads the expected key from the environment.
func NewAuthMiddleware(header string) *AuthMiddleware {
	if header == "" {
		header = "X-API-Key"
	}
	return &AuthMiddleware{
		header: header,
		apiKey: os.Getenv("QA_API_KEY"),
	}
}

// Handler rejects requests whose key does not match. Comparison is
// constant time so the key cannot be probed byte by byte.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get(m.header)
		if provided == "" {
			http.Error(w, "missing API key", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.apiKey)) != 1 {
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
