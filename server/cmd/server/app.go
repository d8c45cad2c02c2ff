package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/obsidianstack/reqscope/pkg/types"
	"github.com/obsidianstack/reqscope/server/internal/alerts"
	"github.com/obsidianstack/reqscope/server/internal/api"
	"github.com/obsidianstack/reqscope/server/internal/archive"
	"github.com/obsidianstack/reqscope/server/internal/auth"
	"github.com/obsidianstack/reqscope/server/internal/config"
	"github.com/obsidianstack/reqscope/server/internal/logbuf"
	"github.com/obsidianstack/reqscope/server/internal/pool"
	"github.com/obsidianstack/reqscope/server/internal/probe"
	"github.com/obsidianstack/reqscope/server/internal/route"
	"github.com/obsidianstack/reqscope/server/internal/stats"
	"github.com/obsidianstack/reqscope/server/internal/ws"
)

// app owns every long-lived component of the server.
type app struct {
	cfg   atomic.Pointer[config.ServerConfig]
	level *slog.LevelVar

	logs     *logbuf.Buffer
	stats    *stats.Stats
	routes   *route.Table
	fromFile map[routeKey]bool // routes added from config; touched only by newApp and reload
	subs     *ws.Registry
	upgrader *ws.Handler
	alerts   *alerts.Engine
	archive  *archive.Archive // nil when storage is disabled
	disp     *route.Dispatcher
	probe    *probe.Probe // nil when grpc_port is 0
}

func newApp(cfg config.ServerConfig, level *slog.LevelVar) (*app, error) {
	if level == nil {
		level = new(slog.LevelVar)
	}
	a := &app{
		level:    level,
		logs:     logbuf.New(cfg.Logs.Capacity),
		stats:    stats.New(),
		routes:   route.NewTable(),
		fromFile: make(map[routeKey]bool),
		subs:     ws.NewRegistry(),
		alerts:   alerts.New(cfg.Alerts),
	}
	a.cfg.Store(&cfg)
	a.stats.MarkStarted()
	a.upgrader = ws.NewHandler(a.subs, cfg.WebSocket.WriteTimeout)

	route.RegisterDefaults(a.routes, a.stats)
	a.syncConfigRoutes(cfg.Routes)

	sinks := []types.Sink{ws.NewBroadcaster(a.subs), a.alerts}
	if cfg.Storage.Enabled() {
		arc, err := archive.Open(cfg.Storage.Path, cfg.Storage.Retention)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.archive = arc
		sinks = append(sinks, arc)
	}
	a.disp = route.NewDispatcher(a.routes, a.logs, a.stats, sinks...)

	if cfg.GRPCPort > 0 {
		a.probe = probe.New(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key())
	}

	slog.Info("components ready",
		"routes", a.routes.Len(),
		"log_capacity", a.logs.Capacity(),
		"alert_rules", a.alerts.Rules(),
		"storage", cfg.Storage.Backend,
	)
	return a, nil
}

func (a *app) config() config.ServerConfig { return *a.cfg.Load() }

// Handler assembles the HTTP surface. Only requests that fall through to "/"
// reach the dispatcher and get logged.
func (a *app) Handler() http.Handler {
	cfg := a.config()

	deps := api.Deps{
		Logs:        a.logs,
		Routes:      a.routes,
		Stats:       a.stats,
		Subscribers: a.subs,
		Alerts:      a.alerts,
		Control:     a,
		Config:      a.config,
	}
	if a.archive != nil {
		deps.History = a.archive
	}
	guard := auth.RequireAPIKey(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key())
	mgmt := guard(api.New(deps))

	mux := http.NewServeMux()
	mux.Handle(cfg.WebSocket.Path, a.upgrader)
	for _, p := range api.Paths {
		mux.Handle(p, mgmt)
	}
	if cfg.StaticDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
		slog.Info("serving static files", "dir", cfg.StaticDir)
	}
	mux.Handle("/", a.disp)

	return pool.Limit(cfg.Workers, mux)
}

// Start resumes dispatching. It implements api.Control.
func (a *app) Start() {
	a.disp.Resume()
	a.stats.SetRunning(true)
	if a.probe != nil {
		a.probe.SetServing(true)
	}
	slog.Info("dispatching started")
}

// Stop pauses dispatching; requests answer 503 until Start.
func (a *app) Stop() {
	a.disp.Pause()
	a.stats.SetRunning(false)
	if a.probe != nil {
		a.probe.SetServing(false)
	}
	slog.Info("dispatching stopped")
}

// reload applies the parts of cfg that can change without a restart.
func (a *app) reload(cfg *config.Config) {
	next := cfg.Server
	prev := a.config()

	a.level.Set(next.Logging.SlogLevel())
	a.logs.Resize(next.Logs.Capacity)
	a.syncConfigRoutes(next.Routes)

	// Fields bound at startup keep their running values. Alert rules are
	// compiled once by newApp.
	pinned := prev
	pinned.Logging, pinned.Logs, pinned.Routes = next.Logging, next.Logs, next.Routes
	if !sameStartup(pinned, next) {
		slog.Warn("config: listener, worker, auth and storage changes need a restart")
	}
	next = pinned
	a.cfg.Store(&next)

	slog.Info("config reloaded",
		"level", next.Logging.Level,
		"log_capacity", next.Logs.Capacity,
		"routes", a.routes.Len(),
	)
}

func sameStartup(a, b config.ServerConfig) bool {
	return a.HTTPPort == b.HTTPPort && a.GRPCPort == b.GRPCPort &&
		a.Workers == b.Workers && a.StaticDir == b.StaticDir &&
		a.WebSocket == b.WebSocket && a.Auth == b.Auth && a.Storage == b.Storage
}

type routeKey struct{ method, path string }

// syncConfigRoutes installs rs and removes routes an earlier config declared
// that rs no longer lists. Routes added through the API are left alone unless
// the config declared the same method and path.
func (a *app) syncConfigRoutes(rs []config.RouteConfig) {
	next := make(map[routeKey]bool, len(rs))
	for _, rc := range rs {
		k := routeKey{method: strings.ToUpper(rc.Method), path: rc.Path}
		next[k] = true
		a.routes.Add(rc.Path, k.method, rc.Name, route.Static(rc.Status, rc.ContentType, rc.Body))
	}
	for k := range a.fromFile {
		if !next[k] {
			a.routes.Remove(k.path, k.method)
			slog.Info("config: route removed", "method", k.method, "path", k.path)
		}
	}
	a.fromFile = next
}

// close releases everything opened by newApp. The HTTP server must already
// be shut down.
func (a *app) close() {
	n := a.upgrader.Shutdown()
	slog.Info("subscribers closed", "count", n)
	if a.probe != nil {
		a.probe.Stop()
	}
	a.alerts.Wait()
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			slog.Warn("archive close", "err", err)
		}
	}
}
