package route

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/reqscope/pkg/types"
	"github.com/obsidianstack/reqscope/server/internal/respond"
	"github.com/obsidianstack/reqscope/server/internal/stats"
)

// ErrNoRoute is the outcome error for requests without an enabled route.
var ErrNoRoute = errors.New("route: no handler registered")

// FaultError wraps an error returned (or a panic raised) by a route handler.
type FaultError struct {
	Method string
	Path   string
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("route: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Outcome describes how one dispatch ended. Err is nil, ErrNoRoute, or a
// *FaultError. Record is the log entry produced for the request.
type Outcome struct {
	Status int
	Err    error
	Record types.Record
}

// Log is the audit-log surface the dispatcher writes to.
type Log interface {
	Push(rec types.Record)
}

// Dispatcher routes requests through a Table and logs every one of them.
type Dispatcher struct {
	table *Table
	log   Log
	stats *stats.Stats
	sinks []types.Sink
	now   func() time.Time

	paused atomic.Bool
}

// NewDispatcher wires a dispatcher. st may be nil. Sinks receive records in
// the order given, after the record has been pushed to log.
func NewDispatcher(t *Table, log Log, st *stats.Stats, sinks ...types.Sink) *Dispatcher {
	return &Dispatcher{
		table: t,
		log:   log,
		stats: st,
		sinks: sinks,
		now:   time.Now,
	}
}

// Pause makes every dispatch answer 503 until Resume. Paused requests are
// still logged.
func (d *Dispatcher) Pause() { d.paused.Store(true) }

// Resume undoes Pause.
func (d *Dispatcher) Resume() { d.paused.Store(false) }

// Paused reports whether the dispatcher is paused.
func (d *Dispatcher) Paused() bool { return d.paused.Load() }

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.Dispatch(w, r)
}

// Dispatch serves r and returns its outcome. It never panics because of a
// handler and always produces exactly one record.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request) Outcome {
	start := d.now()
	sw := &statusWriter{ResponseWriter: w}

	var out Outcome
	h, ok := d.table.Handler(r.URL.Path, r.Method)
	switch {
	case d.paused.Load():
		out.Status = http.StatusServiceUnavailable
		respond.Error(sw, http.StatusServiceUnavailable, "Service Unavailable")
	case !ok:
		out.Err = ErrNoRoute
		out.Status = http.StatusNotFound
		respond.Error(sw, http.StatusNotFound, "Not Found")
	default:
		if err := invoke(h, sw, r); err != nil {
			out.Err = &FaultError{Method: r.Method, Path: r.URL.Path, Err: err}
			out.Status = http.StatusInternalServerError
			slog.Error("route: handler fault", "method", r.Method, "path", r.URL.Path, "err", err)
			if !sw.wrote {
				respond.Error(sw, http.StatusInternalServerError, "Internal Server Error")
			}
		} else {
			out.Status = sw.status()
		}
	}

	// Let the client have its response before fan-out starts.
	sw.flush()

	elapsed := d.now().Sub(start)
	out.Record = types.NewRecord(start, r.Method, r.URL.Path, out.Status, elapsed, clientIP(r), r.UserAgent())

	d.log.Push(out.Record)
	if d.stats != nil {
		d.stats.Observe(out.Status, elapsed)
	}
	for _, s := range d.sinks {
		s.Publish(out.Record)
	}
	return out
}

// invoke calls h, converting a panic into an error.
func invoke(h Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h.ServeRoute(w, r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.code = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.code = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) status() int {
	if !w.wrote {
		return http.StatusOK
	}
	return w.code
}

func (w *statusWriter) flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
