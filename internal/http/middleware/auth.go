package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the header checked by the auth middleware.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key header does not match key. An
// empty key disables authentication.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
