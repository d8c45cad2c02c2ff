package api

import (
	"github.com/obsidianstack/reqscope/pkg/types"
	"github.com/obsidianstack/reqscope/server/internal/alerts"
	"github.com/obsidianstack/reqscope/server/internal/route"
)

// LogsResponse is the payload for GET /api/logs and GET /api/logs/history.
type LogsResponse struct {
	Logs  []types.Record `json:"logs"`
	Total int            `json:"total"`
}

// RoutesResponse is the payload for GET /api/routes.
type RoutesResponse struct {
	Routes []route.Entry `json:"routes"`
}

// RouteRequest is the body of POST and PUT /api/routes. Enabled is only read
// by PUT.
type RouteRequest struct {
	Path    string `json:"path"`
	Method  string `json:"method"`
	Handler string `json:"handler"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// RouteChangeResponse confirms a route mutation.
type RouteChangeResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
	Method  string `json:"method"`
	Handler string `json:"handler,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// StatusResponse is the payload for GET /api/server/status and the control
// endpoints.
type StatusResponse struct {
	Status    string `json:"status"` // "running" | "stopped"
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StatsResponse is the payload for GET /api/server/stats.
type StatsResponse struct {
	Uptime            string           `json:"uptime"`
	TotalRequests     int64            `json:"totalRequests"`
	Faults            int64            `json:"faults"`
	ActiveConnections int              `json:"activeConnections"`
	MemoryUsage       string           `json:"memoryUsage"`
	LogCount          int              `json:"logCount"`
	LogCapacity       int              `json:"logCapacity"`
	ByStatus          map[string]int64 `json:"byStatus"`
}

// ConfigResponse is the payload for GET /api/server/config.
type ConfigResponse struct {
	Port           int    `json:"port"`
	GRPCPort       int    `json:"grpcPort"`
	DocumentRoot   string `json:"documentRoot"`
	ThreadPoolSize int    `json:"threadPoolSize"`
	LogCapacity    int    `json:"logCapacity"`
	WebSocketPath  string `json:"websocketPath"`
	AuthMode       string `json:"authMode"`
	Storage        string `json:"storage"`
	Routes         int    `json:"routes"`
}

// AlertsResponse is the payload for GET /api/alerts.
type AlertsResponse struct {
	Alerts []*alerts.Alert `json:"alerts"`
}

// MessageResponse is a bare confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}
