// Package pool bounds how many requests are handled at once.
package pool

import (
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/obsidianstack/reqscope/server/internal/respond"
)

// DefaultWorkers is used when Limit is given a non-positive size.
const DefaultWorkers = 10

// Limit returns a handler that lets at most workers requests run next
// concurrently. Excess requests wait; a request whose context ends while
// waiting is answered with 503.
func Limit(workers int, next http.Handler) http.Handler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	sem := semaphore.NewWeighted(int64(workers))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sem.Acquire(r.Context(), 1); err != nil {
			slog.Warn("pool: request abandoned while queued", "path", r.URL.Path, "err", err)
			respond.Error(w, http.StatusServiceUnavailable, "Service Unavailable")
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}
