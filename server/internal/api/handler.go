package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/reqscope/pkg/types"
	"github.com/obsidianstack/reqscope/server/internal/alerts"
	"github.com/obsidianstack/reqscope/server/internal/config"
	"github.com/obsidianstack/reqscope/server/internal/logbuf"
	"github.com/obsidianstack/reqscope/server/internal/respond"
	"github.com/obsidianstack/reqscope/server/internal/route"
	"github.com/obsidianstack/reqscope/server/internal/stats"
)

const maxBodyBytes = 1 << 16

// History reads archived records.
type History interface {
	Query(ctx context.Context, since time.Time, limit int) ([]types.Record, error)
}

// Control pauses and resumes request dispatching.
type Control interface {
	Start()
	Stop()
}

// Deps are the collaborators behind the API. History, Alerts and Control
// may be nil; the matching endpoints then report the feature as unavailable.
type Deps struct {
	Logs        *logbuf.Buffer
	Routes      *route.Table
	Stats       *stats.Stats
	Subscribers interface{ Len() int }
	History     History
	Alerts      *alerts.Engine
	Control     Control

	// Config returns the configuration currently in effect.
	Config func() config.ServerConfig
}

// Handler serves the management endpoints under /api/ and /metrics.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// Paths lists every endpoint Handler serves, for mounting on an outer mux.
var Paths = []string{
	"/api/logs",
	"/api/logs/history",
	"/api/routes",
	"/api/server/status",
	"/api/server/stats",
	"/api/server/config",
	"/api/server/start",
	"/api/server/stop",
	"/api/alerts",
	"/metrics",
}

// New creates a Handler wired to d and registers all routes.
func New(d Deps) *Handler {
	if d.Config == nil {
		d.Config = func() config.ServerConfig { return config.Default().Server }
	}
	h := &Handler{Deps: d, mux: http.NewServeMux()}

	h.handle("/api/logs", h.logs)
	h.handle("/api/logs/history", h.history)
	h.handle("/api/routes", h.routes)
	h.handle("/api/server/status", h.status)
	h.handle("/api/server/stats", h.stats)
	h.handle("/api/server/config", h.config)
	h.handle("/api/server/start", h.control(true))
	h.handle("/api/server/stop", h.control(false))
	h.handle("/api/alerts", h.alerts)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handle registers fn behind CORS headers and OPTIONS preflight.
func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if respond.Preflight(w, r) {
			return
		}
		fn(w, r)
	})
}

// --- logs ---

// logs serves GET /api/logs?limit=N, newest first, and DELETE /api/logs.
func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := queryInt(r, "limit", h.Config().Logs.DefaultLimit)
		respond.JSON(w, http.StatusOK, LogsResponse{
			Logs:  newestFirst(h.Logs.Recent(limit)),
			Total: h.Logs.Count(),
		})
	case http.MethodDelete:
		h.Logs.Clear()
		respond.JSON(w, http.StatusOK, MessageResponse{Message: "Logs cleared successfully"})
	default:
		methodNotAllowed(w)
	}
}

// history serves GET /api/logs/history?since=RFC3339&limit=N from the archive.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if h.History == nil {
		respond.Error(w, http.StatusNotFound, "storage disabled")
		return
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	limit := queryInt(r, "limit", h.Config().Logs.DefaultLimit)

	recs, err := h.History.Query(r.Context(), since, limit)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "history query failed")
		return
	}
	respond.JSON(w, http.StatusOK, LogsResponse{Logs: recs, Total: len(recs)})
}

// --- routes ---

// routes serves GET, POST, PUT and DELETE /api/routes.
func (h *Handler) routes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respond.JSON(w, http.StatusOK, RoutesResponse{Routes: h.Routes.List()})
	case http.MethodPost:
		h.addRoute(w, r)
	case http.MethodPut:
		h.toggleRoute(w, r)
	case http.MethodDelete:
		h.removeRoute(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) addRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := decodeBody(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Path == "" || req.Method == "" || req.Handler == "" {
		respond.Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !strings.HasPrefix(req.Path, "/") {
		respond.Error(w, http.StatusBadRequest, "path must start with /")
		return
	}

	method := strings.ToUpper(req.Method)
	h.Routes.Add(req.Path, method, req.Handler, route.Named(req.Handler))
	respond.JSON(w, http.StatusOK, RouteChangeResponse{
		Message: "Route added successfully",
		Path:    req.Path,
		Method:  method,
		Handler: req.Handler,
	})
}

func (h *Handler) toggleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := decodeBody(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Path == "" || req.Method == "" || req.Enabled == nil {
		respond.Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	method := strings.ToUpper(req.Method)
	if !h.Routes.SetEnabled(req.Path, method, *req.Enabled) {
		respond.Error(w, http.StatusNotFound, "route not found")
		return
	}
	respond.JSON(w, http.StatusOK, RouteChangeResponse{
		Message: "Route updated successfully",
		Path:    req.Path,
		Method:  method,
		Enabled: req.Enabled,
	})
}

func (h *Handler) removeRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	method := strings.ToUpper(q.Get("method"))
	if method == "" {
		method = http.MethodGet
	}
	if path == "" {
		respond.Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !h.Routes.Remove(path, method) {
		respond.Error(w, http.StatusNotFound, "route not found")
		return
	}
	respond.JSON(w, http.StatusOK, RouteChangeResponse{
		Message: "Route removed successfully",
		Path:    path,
		Method:  method,
	})
}

// --- server ---

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	respond.JSON(w, http.StatusOK, StatusResponse{
		Status:    runState(h.Stats.Running()),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	by := make(map[string]int64)
	for code, n := range h.Stats.ByStatus() {
		by[strconv.Itoa(code)] = n
	}
	respond.JSON(w, http.StatusOK, StatsResponse{
		Uptime:            stats.FormatUptime(h.Stats.Uptime()),
		TotalRequests:     h.Stats.Requests(),
		Faults:            h.Stats.Faults(),
		ActiveConnections: h.subscribers(),
		MemoryUsage:       stats.MemoryUsage(),
		LogCount:          h.Logs.Count(),
		LogCapacity:       h.Logs.Capacity(),
		ByStatus:          by,
	})
}

func (h *Handler) config(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	cfg := h.Config()
	storage := cfg.Storage.Backend
	if storage == "" {
		storage = "none"
	}
	authMode := cfg.Auth.Mode
	if authMode == "" {
		authMode = "none"
	}
	respond.JSON(w, http.StatusOK, ConfigResponse{
		Port:           cfg.HTTPPort,
		GRPCPort:       cfg.GRPCPort,
		DocumentRoot:   cfg.StaticDir,
		ThreadPoolSize: cfg.Workers,
		LogCapacity:    h.Logs.Capacity(),
		WebSocketPath:  cfg.WebSocket.Path,
		AuthMode:       authMode,
		Storage:        storage,
		Routes:         h.Routes.Len(),
	})
}

// control serves POST /api/server/start and /api/server/stop.
func (h *Handler) control(start bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if h.Control == nil {
			respond.Error(w, http.StatusNotImplemented, "server control unavailable")
			return
		}

		msg := "Server stopped successfully"
		if start {
			h.Control.Start()
			msg = "Server started successfully"
		} else {
			h.Control.Stop()
		}
		respond.JSON(w, http.StatusOK, StatusResponse{
			Status:    runState(start),
			Message:   msg,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// --- alerts & metrics ---

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out := []*alerts.Alert{}
	if h.Alerts != nil {
		out = h.Alerts.Active()
	}
	respond.JSON(w, http.StatusOK, AlertsResponse{Alerts: out})
}

// metrics serves GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	err := h.Stats.WriteMetrics(w, stats.Gauges{
		Subscribers: h.subscribers(),
		LogRecords:  h.Logs.Count(),
		LogCapacity: h.Logs.Capacity(),
	})
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "metrics encoding failed")
	}
}

// --- helpers ---

func (h *Handler) subscribers() int {
	if h.Subscribers == nil {
		return 0
	}
	return h.Subscribers.Len()
}

// newestFirst reverses recs in place. Recent hands out a fresh copy.
func newestFirst(recs []types.Record) []types.Record {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs
}

func runState(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func methodNotAllowed(w http.ResponseWriter) {
	respond.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}
