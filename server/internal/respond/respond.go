// Package respond writes JSON bodies and CORS headers for every HTTP surface
// of the server.
package respond

import (
	"encoding/json"
	"net/http"
	"time"
)

// JSON writes v as a JSON body with the given status code.
func JSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// Error writes the standard error envelope.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, ErrorBody{
		Error:     msg,
		Status:    code,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// CORS sets permissive cross-origin headers on w.
func CORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")
}

// Preflight adds CORS headers and, for OPTIONS requests, answers 200 and
// reports true so the caller can stop.
func Preflight(w http.ResponseWriter, r *http.Request) bool {
	CORS(w)
	if r.Method != http.MethodOptions {
		return false
	}
	w.WriteHeader(http.StatusOK)
	return true
}
