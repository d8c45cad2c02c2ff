package auth

import (
	"net/http"

	"github.com/obsidianstack/reqscope/server/internal/respond"
)

// RequireAPIKey guards mutating requests (POST, PUT, PATCH, DELETE) with the
// API key read from header. Reads and CORS preflights pass through.
func RequireAPIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled(mode, key) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				if !keyMatches(r.Header.Get(header), key) {
					respond.CORS(w)
					respond.Error(w, http.StatusUnauthorized, "invalid api key")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
