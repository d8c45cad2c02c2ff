// Package config loads the server configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort              port for dispatched routes, the API and /ws/logs (default 8080)
//   - GRPCPort              port for the gRPC health service, 0 disables (default 50051)
//   - Workers               max concurrently handled HTTP requests (default 10)
//   - StaticDir             directory served under /static/ (off when empty)
//   - Logging.Level/Format  slog level and handler (info, json)
//   - Logs.Capacity         request log ring size (default 1000)
//   - Logs.DefaultLimit     GET /api/logs page size (default 50)
//   - WebSocket.Path        subscriber endpoint (default /ws/logs)
//   - WebSocket.WriteTimeout per-frame write deadline (default 10s)
//   - Auth.Mode/KeyEnv/Header  API key for gRPC and mutating REST calls
//   - Routes                fixed-response routes registered at startup
//   - Alerts                rules evaluated per request and webhook targets
//   - Storage               optional sqlite archive with retention
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on every write and hands valid configs to fn.
package config
