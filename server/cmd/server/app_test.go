package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/reqscope/pkg/types"
	"github.com/obsidianstack/reqscope/server/internal/api"
	"github.com/obsidianstack/reqscope/server/internal/config"
)

func testConfig() config.ServerConfig {
	cfg := config.Default().Server
	cfg.GRPCPort = 0
	return cfg
}

func startApp(t *testing.T, cfg config.ServerConfig) (*app, *httptest.Server) {
	t.Helper()
	a, err := newApp(cfg, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.close()
	})
	return a, srv
}

func call(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApp_DispatchedRequestsAreLogged(t *testing.T) {
	a, srv := startApp(t, testConfig())

	resp := call(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return a.logs.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp = call(t, http.MethodGet, srv.URL+"/missing", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Eventually(t, func() bool { return a.logs.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	var logs api.LogsResponse
	resp = call(t, http.MethodGet, srv.URL+"/api/logs", "")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	require.Equal(t, 2, logs.Total)
	require.Equal(t, "/missing", logs.Logs[0].Path)
	require.Equal(t, "/health", logs.Logs[1].Path)
}

func TestApp_ManagementRequestsAreNotLogged(t *testing.T) {
	a, srv := startApp(t, testConfig())

	for _, p := range []string{"/api/logs", "/api/routes", "/api/server/stats", "/metrics"} {
		resp := call(t, http.MethodGet, srv.URL+p, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, p)
	}
	require.Zero(t, a.logs.Count())
}

func TestApp_ConfigRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Routes = []config.RouteConfig{
		{Path: "/teapot", Method: "GET", Name: "Teapot", Status: 418, ContentType: "text/plain", Body: "short and stout"},
	}
	_, srv := startApp(t, cfg)

	resp := call(t, http.MethodGet, srv.URL+"/teapot", "")
	require.Equal(t, 418, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "short and stout", string(body))
}

func TestApp_StopPausesDispatching(t *testing.T) {
	a, srv := startApp(t, testConfig())

	resp := call(t, http.MethodPost, srv.URL+"/api/server/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, a.stats.Running())

	resp = call(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// The control API stays reachable while paused.
	resp = call(t, http.MethodPost, srv.URL+"/api/server/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_APIKeyGuardsMutations(t *testing.T) {
	t.Setenv("REQSCOPE_TEST_KEY", "s3cret")
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Mode: "apikey", KeyEnv: "REQSCOPE_TEST_KEY"}
	_, srv := startApp(t, cfg)

	body := `{"path":"/x","method":"GET","handler":"X"}`
	resp := call(t, http.MethodPost, srv.URL+"/api/routes", body)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/routes", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-api-key", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Reads stay open.
	resp = call(t, http.MethodGet, srv.URL+"/api/routes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_SubscriberReceivesRecords(t *testing.T) {
	a, srv := startApp(t, testConfig())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + config.DefaultWSPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.subs.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	call(t, http.MethodGet, srv.URL+"/api/test?x=1", "")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var rec types.Record
	require.NoError(t, json.Unmarshal(msg, &rec))
	require.Equal(t, "/api/test", rec.Path)
	require.Equal(t, http.StatusOK, rec.Status)
}

func TestApp_HistoryFromArchive(t *testing.T) {
	cfg := testConfig()
	cfg.Storage = config.StorageConfig{
		Backend:       "sqlite",
		Path:          filepath.Join(t.TempDir(), "records.db"),
		Retention:     time.Hour,
		PruneInterval: time.Minute,
	}
	a, srv := startApp(t, cfg)
	require.NotNil(t, a.archive)

	call(t, http.MethodGet, srv.URL+"/health", "")

	require.Eventually(t, func() bool {
		resp := call(t, http.MethodGet, srv.URL+"/api/logs/history", "")
		var logs api.LogsResponse
		if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
			return false
		}
		return logs.Total == 1 && logs.Logs[0].Path == "/health"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestApp_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))
	cfg := testConfig()
	cfg.StaticDir = dir
	a, srv := startApp(t, cfg)

	resp := call(t, http.MethodGet, srv.URL+"/static/hello.txt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hi", string(body))
	require.Zero(t, a.logs.Count())
}

func TestApp_Reload(t *testing.T) {
	a, _ := startApp(t, testConfig())

	next := config.Default()
	next.Server.GRPCPort = 0
	next.Server.HTTPPort = 9999
	next.Server.Logs.Capacity = 5
	next.Server.Logging.Level = "debug"
	next.Server.Routes = []config.RouteConfig{{Path: "/new", Method: "GET", Name: "New"}}
	a.reload(next)

	require.Equal(t, 5, a.logs.Capacity())
	require.Equal(t, slog.LevelDebug, a.level.Level())
	_, ok := a.routes.Handler("/new", http.MethodGet)
	require.True(t, ok)
	require.Equal(t, config.DefaultHTTPPort, a.config().HTTPPort, "port is bound at startup")
	require.Equal(t, 5, a.config().Logs.Capacity)
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)

	newLogger(&buf, config.LoggingConfig{Level: "info", Format: "text"}, level).Info("hello", "k", "v")
	require.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"}, level).Info("dropped")
	require.Empty(t, buf.String())
	require.Equal(t, slog.LevelWarn, level.Level())
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	require.Equal(t, "reqscope", cmd.Use)
	require.NotNil(t, cmd.Flags().Lookup("config"))
	require.NotNil(t, cmd.Flags().Lookup("static-dir"))

	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	require.Error(t, cmd.Execute())
}

func TestApp_ReloadDropsRemovedConfigRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Routes = []config.RouteConfig{
		{Path: "/a", Method: "GET", Name: "A"},
		{Path: "/b", Method: "get", Name: "B"},
	}
	a, srv := startApp(t, cfg)

	resp := call(t, http.MethodPost, srv.URL+"/api/routes", `{"path":"/manual","method":"GET","handler":"Manual"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	next := config.Default()
	next.Server.GRPCPort = 0
	next.Server.Routes = []config.RouteConfig{{Path: "/b", Method: "GET", Name: "B2"}}
	a.reload(next)

	_, ok := a.routes.Handler("/a", http.MethodGet)
	require.False(t, ok, "route dropped from config is still served")
	for _, p := range []string{"/b", "/manual", "/health"} {
		_, ok := a.routes.Handler(p, http.MethodGet)
		require.True(t, ok, p)
	}

	resp = call(t, http.MethodGet, srv.URL+"/a", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
