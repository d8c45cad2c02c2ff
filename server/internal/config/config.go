package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultGRPCPort      = 50051
	DefaultWorkers       = 10
	DefaultLogCapacity   = 1000
	DefaultLogLimit      = 50
	DefaultWSPath        = "/ws/logs"
	DefaultWriteTimeout  = 10 * time.Second
	DefaultRetention     = 24 * time.Hour
	DefaultPruneInterval = 10 * time.Minute
)

// Config is the root of config.yaml. Only the `server:` key is read.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves dispatched routes, the management API and the
	// WebSocket endpoint (default 8080).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service. 0 disables it (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// Workers caps concurrently handled HTTP requests (default 10).
	Workers int `yaml:"workers"`

	// StaticDir, when set, is served under /static/.
	StaticDir string `yaml:"static_dir"`

	Logging   LoggingConfig   `yaml:"logging"`
	Logs      LogsConfig      `yaml:"logs"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`

	// Routes are registered at startup in addition to /health and /api/test.
	Routes []RouteConfig `yaml:"routes"`

	Alerts  AlertsConfig  `yaml:"alerts"`
	Storage StorageConfig `yaml:"storage"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is one of: debug | info | warn | error (default info).
	Level string `yaml:"level"`

	// Format is one of: json | text (default json).
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogsConfig sizes the in-memory request log.
type LogsConfig struct {
	// Capacity is the number of records kept before the oldest is evicted.
	Capacity int `yaml:"capacity"`

	// DefaultLimit is used by GET /api/logs when no limit is given.
	DefaultLimit int `yaml:"default_limit"`
}

// WebSocketConfig controls the subscriber endpoint.
type WebSocketConfig struct {
	Path string `yaml:"path"`

	// WriteTimeout bounds one frame write to one subscriber. 0 disables it.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig controls client authentication for gRPC and mutating REST calls.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// RouteConfig declares a route that always answers with a fixed response.
type RouteConfig struct {
	Path   string `yaml:"path"`
	Method string `yaml:"method"`

	// Name is the handler label shown by GET /api/routes.
	Name string `yaml:"name"`

	Status      int    `yaml:"status"`
	ContentType string `yaml:"content_type"`
	Body        string `yaml:"body"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one condition evaluated against every request record.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "status >= 500",
	// "response_time_ms > 1000", "method == DELETE", "path == /admin".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// StorageConfig enables the persistent record archive.
type StorageConfig struct {
	// Backend is "" (disabled) or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the database file.
	Path string `yaml:"path"`

	// Retention is how long archived records are kept (default 24h).
	Retention time.Duration `yaml:"retention"`

	// PruneInterval is how often expired records are deleted (default 10m).
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// Enabled reports whether an archive backend is configured.
func (s StorageConfig) Enabled() bool { return s.Backend != "" }

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	for i := range cfg.Server.Routes {
		r := &cfg.Server.Routes[i]
		r.Method = strings.ToUpper(r.Method)
		if r.Method == "" {
			r.Method = http.MethodGet
		}
		if r.Name == "" {
			r.Name = "StaticHandler"
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is what
// the server runs with when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			Workers:  DefaultWorkers,
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Logs: LogsConfig{
				Capacity:     DefaultLogCapacity,
				DefaultLimit: DefaultLogLimit,
			},
			WebSocket: WebSocketConfig{
				Path:         DefaultWSPath,
				WriteTimeout: DefaultWriteTimeout,
			},
			Storage: StorageConfig{
				Retention:     DefaultRetention,
				PruneInterval: DefaultPruneInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port are both %d", s.HTTPPort)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive")
	}

	switch strings.ToLower(s.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server.logging.level %q unknown: want debug|info|warn|error", s.Logging.Level)
	}
	switch s.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("server.logging.format %q unknown: want json|text", s.Logging.Format)
	}

	if s.Logs.Capacity <= 0 {
		return fmt.Errorf("server.logs.capacity must be positive")
	}
	if s.Logs.DefaultLimit <= 0 {
		return fmt.Errorf("server.logs.default_limit must be positive")
	}

	if !strings.HasPrefix(s.WebSocket.Path, "/") {
		return fmt.Errorf("server.websocket.path %q must start with /", s.WebSocket.Path)
	}
	if s.WebSocket.WriteTimeout < 0 {
		return fmt.Errorf("server.websocket.write_timeout must not be negative")
	}

	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}

	for i, r := range s.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("server.routes[%d].path %q must start with /", i, r.Path)
		}
		if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
			return fmt.Errorf("server.routes[%d].status %d is not an HTTP status", i, r.Status)
		}
	}

	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d].name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d].condition is required", i)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want teams|slack|http", i, w.Type)
		}
	}

	switch s.Storage.Backend {
	case "":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want sqlite", s.Storage.Backend)
	}
	if s.Storage.Retention < 0 || s.Storage.PruneInterval < 0 {
		return fmt.Errorf("server.storage retention and prune_interval must not be negative")
	}
	return nil
}
