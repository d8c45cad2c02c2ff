package route

import (
	"net/http"
	"time"

	"github.com/obsidianstack/reqscope/server/internal/respond"
	"github.com/obsidianstack/reqscope/server/internal/stats"
)

// Version is reported by the health route.
const Version = "1.0.0"

// RegisterDefaults adds the built-in routes: GET /health and GET /api/test.
func RegisterDefaults(t *Table, st *stats.Stats) {
	t.Add("/health", http.MethodGet, "HealthCheckHandler", Health(st))
	t.Add("/api/test", http.MethodGet, "TestHandler", Echo())
}

// Health reports liveness, uptime and version.
func Health(st *stats.Stats) Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		respond.CORS(w)
		var uptime time.Duration
		if st != nil {
			uptime = st.Uptime()
		}
		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UnixMilli(),
			"uptime":    stats.FormatUptime(uptime),
			"version":   Version,
		})
		return nil
	})
}

// Echo describes the request back to the caller.
func Echo() Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		respond.CORS(w)
		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"message":   "Test endpoint working!",
			"method":    r.Method,
			"path":      r.URL.Path,
			"query":     r.URL.RawQuery,
			"headers":   r.Header,
			"timestamp": time.Now().UnixMilli(),
		})
		return nil
	})
}

// Named is the handler behind routes created at runtime through the API.
// It answers with a JSON greeting naming itself.
func Named(name string) Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"message":   "Response from " + name,
			"path":      r.URL.Path,
			"method":    r.Method,
			"timestamp": time.Now().UnixMilli(),
		})
		return nil
	})
}

// Static always answers with the given status and body. An empty
// contentType defaults to application/json.
func Static(status int, contentType, body string) Handler {
	if status == 0 {
		status = http.StatusOK
	}
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, err := w.Write([]byte(body))
		return err
	})
}
