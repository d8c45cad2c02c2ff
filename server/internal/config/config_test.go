package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Only an unrelated top-level key; the server section is absent.
	p := writeConfig(t, `client:
  endpoint: "localhost:8080"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", s.GRPCPort, DefaultGRPCPort)
	}
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Workers != DefaultWorkers {
		t.Errorf("workers: got %d, want %d", s.Workers, DefaultWorkers)
	}
	if s.Logs.Capacity != DefaultLogCapacity || s.Logs.DefaultLimit != DefaultLogLimit {
		t.Errorf("logs: got %+v", s.Logs)
	}
	if s.WebSocket.Path != DefaultWSPath || s.WebSocket.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("websocket: got %+v", s.WebSocket)
	}
	if s.Storage.Enabled() {
		t.Error("storage should be disabled by default")
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  grpc_port: 9090
  workers: 4
  static_dir: ./public
  logging:
    level: debug
    format: text
  logs:
    capacity: 100
    default_limit: 20
  websocket:
    path: /ws/stream
    write_timeout: 2s
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-obs-key
  routes:
    - path: /hello
      method: post
      name: Hello
      status: 201
      body: '{"hi":true}'
    - path: /plain
  alerts:
    rules:
      - name: server-errors
        condition: "status >= 500"
        severity: critical
        cooldown: 1m
    webhooks:
      - type: slack
        url_env: SLACK_URL
  storage:
    backend: sqlite
    path: /tmp/reqscope.db
    retention: 48h
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 || s.HTTPPort != 9091 || s.Workers != 4 {
		t.Errorf("ports/workers: got %d/%d/%d", s.GRPCPort, s.HTTPPort, s.Workers)
	}
	if s.Logging.SlogLevel() != slog.LevelDebug || s.Logging.Format != "text" {
		t.Errorf("logging: got %+v", s.Logging)
	}
	if s.Logs.Capacity != 100 || s.Logs.DefaultLimit != 20 {
		t.Errorf("logs: got %+v", s.Logs)
	}
	if s.WebSocket.Path != "/ws/stream" || s.WebSocket.WriteTimeout != 2*time.Second {
		t.Errorf("websocket: got %+v", s.WebSocket)
	}
	if s.Auth.EffectiveHeader() != "x-obs-key" {
		t.Errorf("header: got %q, want x-obs-key", s.Auth.EffectiveHeader())
	}

	if len(s.Routes) != 2 {
		t.Fatalf("routes: got %d, want 2", len(s.Routes))
	}
	if r := s.Routes[0]; r.Method != "POST" || r.Status != 201 || r.Name != "Hello" {
		t.Errorf("routes[0]: got %+v", r)
	}
	if r := s.Routes[1]; r.Method != "GET" || r.Name != "StaticHandler" {
		t.Errorf("routes[1] defaults: got %+v", r)
	}

	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != time.Minute {
		t.Errorf("alerts.rules: got %+v", s.Alerts.Rules)
	}
	if !s.Storage.Enabled() || s.Storage.Retention != 48*time.Hour {
		t.Errorf("storage: got %+v", s.Storage)
	}
	if s.Storage.PruneInterval != DefaultPruneInterval {
		t.Errorf("storage.prune_interval: got %v, want default", s.Storage.PruneInterval)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_GRPCDisabled(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 0
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.GRPCPort != 0 {
		t.Errorf("grpc_port: got %d, want 0", cfg.Server.GRPCPort)
	}
}

func TestLoad_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want string
	}{
		{"auth mode", "server:\n  auth:\n    mode: oauth2\n", "server.auth.mode"},
		{"http port", "server:\n  http_port: 70000\n", "server.http_port"},
		{"port clash", "server:\n  http_port: 9000\n  grpc_port: 9000\n", "both 9000"},
		{"workers", "server:\n  workers: 0\n", "server.workers"},
		{"capacity", "server:\n  logs:\n    capacity: -1\n", "server.logs.capacity"},
		{"log level", "server:\n  logging:\n    level: loud\n", "server.logging.level"},
		{"log format", "server:\n  logging:\n    format: xml\n", "server.logging.format"},
		{"ws path", "server:\n  websocket:\n    path: ws\n", "server.websocket.path"},
		{"route path", "server:\n  routes:\n    - path: nope\n", "server.routes[0].path"},
		{"route status", "server:\n  routes:\n    - path: /x\n      status: 42\n", "server.routes[0].status"},
		{"rule name", "server:\n  alerts:\n    rules:\n      - condition: \"status >= 500\"\n", "rules[0].name"},
		{"webhook type", "server:\n  alerts:\n    webhooks:\n      - type: pagerduty\n", "webhooks[0].type"},
		{"storage backend", "server:\n  storage:\n    backend: postgres\n", "server.storage.backend"},
		{"storage path", "server:\n  storage:\n    backend: sqlite\n", "server.storage.path"},
		{"bad yaml", "server: [\n", "parse yaml"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
			if !strings.HasPrefix(err.Error(), "server config: ") {
				t.Errorf("error %q lacks the server config prefix", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		if got := (LoggingConfig{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q): got %v, want %v", in, got, want)
		}
	}
}
